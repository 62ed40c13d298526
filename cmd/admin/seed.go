package main

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/unclebandit/certificate-service/internal/handler"
	"github.com/unclebandit/certificate-service/internal/service"
)

const (
	seedRoster = "nome,email,curso,carga_horaria\n" +
		"Ana Souza,ana@example.com,Introducao a Go,20\n" +
		"Bruno Lima,bruno@example.com,Introducao a Go,20\n" +
		"Carla Dias,carla@example.com,Introducao a Go,20"
	seedDocument = `<html><body>
<h1>Certificado</h1>
<p>Certificamos que <strong>{{nome}}</strong> concluiu o curso {{curso}} com carga horaria de {{carga_horaria}} horas.</p>
</body></html>`
)

var seedOwner string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create a demo dataset, template and pending run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		owner := uuid.New()
		if seedOwner != "" {
			var err error
			if owner, err = uuid.Parse(seedOwner); err != nil {
				return fmt.Errorf("invalid --owner: %w", err)
			}
		}

		a, err := open(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return seed(cmd.Context(), cmd.OutOrStdout(), a.Services, owner)
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedOwner, "owner", "", "Owner group id (random when empty)")
	rootCmd.AddCommand(seedCmd)
}

func seed(ctx context.Context, out io.Writer, s handler.Services, owner uuid.UUID) error {
	d, err := s.Datasets.CreateDataset(ctx, owner, "Turma demo", seedRoster)
	if err != nil {
		return fmt.Errorf("failed to seed dataset: %w", err)
	}
	tpl, err := s.Templates.CreateTemplate(ctx, owner, "Certificado demo", seedDocument)
	if err != nil {
		return fmt.Errorf("failed to seed template: %w", err)
	}
	run, err := s.Runs.CreateRun(ctx, runInput(owner, d.ID, tpl.ID))
	if err != nil {
		return fmt.Errorf("failed to seed run: %w", err)
	}

	fmt.Fprintf(out, "Seeded: dataset %s\n", d.ID)
	fmt.Fprintf(out, "Seeded: template %s\n", tpl.ID)
	fmt.Fprintf(out, "Seeded: run %s (pending)\n", run.ID)
	return nil
}

func runInput(owner, datasetID, templateID uuid.UUID) service.CreateRunInput {
	return service.CreateRunInput{
		OwnerGroupID: owner,
		Name:         "Run demo",
		DatasetID:    datasetID,
		TemplateID:   templateID,
		NameColumn:   "nome",
		EmailColumn:  "email",
	}
}
