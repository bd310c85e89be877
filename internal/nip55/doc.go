// Package nip55 define el modelo de datos de las solicitudes de firma que llegan al dispatcher.
//
// Las formas de cable son las mismas que usa el bridge local:
//
//	Request {id, type, params, callingApp, timestamp}
//	Result  {ok, type, id, result?, reason?}
//
// El parseo de envelopes de plataforma (URL schemes, intents) queda fuera de este paquete;
// aquí solo vive el modelo ya normalizado y su validación sincrónica.
package nip55
