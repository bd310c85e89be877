package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/igloo/internal/nip55"
)

func newRootCmd(out io.Writer) *cobra.Command {
	var (
		baseURL = envOr("IGLOO_URL", "http://127.0.0.1:45555")
		socket  = envOr("IGLOO_SOCKET", "")
		timeout = 30 * time.Second
		be      backend
	)

	root := &cobra.Command{
		Use:           "igloo",
		Short:         "CLI de administración de iglood",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			be = newBackend(baseURL, socket, timeout)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&baseURL, "url", baseURL, "URL base del bridge HTTP (env IGLOO_URL)")
	root.PersistentFlags().StringVar(&socket, "socket", socket, "Ruta del socket local; si se indica, se usa en lugar de HTTP (env IGLOO_SOCKET)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", timeout, "Timeout de cada llamada")

	printJSON := func(v any) error {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	pingCmd := &cobra.Command{
		Use:   "ping",
		Short: "Verifica que iglood responda",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := be.Ping(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(out, "pong")
			return nil
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Muestra el snapshot del dispatcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := be.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(st)
		},
	}

	healthCmd := &cobra.Command{
		Use:       "health [healthy|unhealthy]",
		Short:     "Muestra o cambia la salud del motor",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"healthy", "unhealthy"},
		RunE: func(cmd *cobra.Command, args []string) error {
			transition := ""
			if len(args) == 1 {
				transition = args[0]
			}
			h, err := be.Health(cmd.Context(), transition)
			if err != nil {
				return err
			}
			return printJSON(h)
		},
	}

	var delID, delResult, delReason, delType string
	deliverCmd := &cobra.Command{
		Use:   "deliver",
		Short: "Entrega el resultado de un request pendiente",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if delID == "" {
				return fmt.Errorf("--id es requerido")
			}
			if (delResult == "") == (delReason == "") {
				return fmt.Errorf("indicar exactamente uno de --result o --reason")
			}
			res := nip55.Result{ID: delID, Type: delType, OK: delResult != "", Result: delResult, Reason: delReason}
			ok, err := be.Deliver(cmd.Context(), delID, res)
			if err != nil {
				return err
			}
			return printJSON(map[string]bool{"delivered": ok})
		},
	}
	deliverCmd.Flags().StringVar(&delID, "id", "", "Request id")
	deliverCmd.Flags().StringVar(&delResult, "result", "", "Valor exitoso")
	deliverCmd.Flags().StringVar(&delReason, "reason", "", "Motivo de fallo")
	deliverCmd.Flags().StringVar(&delType, "type", "", "Tipo de operación (opcional)")

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Vacía colas, cache y contadores del dispatcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := be.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(out, "ok")
			return nil
		},
	}

	root.AddCommand(pingCmd, statsCmd, healthCmd, deliverCmd, resetCmd)
	return root
}

func main() {
	if err := newRootCmd(os.Stdout).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
