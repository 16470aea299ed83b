// Package process provides the intake command: it runs one document file
// through the classify, extract, match, route pipeline.
package process

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mkarling/podkeeper/internal/conf"
	"github.com/mkarling/podkeeper/internal/core"
	"github.com/mkarling/podkeeper/internal/matcher"
	"github.com/mkarling/podkeeper/internal/pipeline"
)

// Command creates and returns the process command
func Command(settings *conf.Settings) *cobra.Command {
	var fieldsPath string

	cmd := &cobra.Command{
		Use:   "process [document file]",
		Short: "Run a document through intake matching and routing",
		Long: `Process reads a document file and its pre-extracted fields and runs
the full intake pipeline: classification, field extraction, job matching,
routing decision and the resulting lifecycle transition.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd.Context(), settings, args[0], fieldsPath)
		},
	}

	cmd.Flags().StringVarP(&fieldsPath, "fields", "f", "", "JSON file with classification and extraction results (default: <document>.json)")

	return cmd
}

// sidecar carries the external classifier and extractor output for a
// document. Intake normally receives these from upstream services; the CLI
// reads them from a JSON file next to the document.
type sidecar struct {
	IsDocument               bool    `json:"is_document"`
	ClassificationConfidence float64 `json:"classification_confidence"`
	Supplier                 string  `json:"supplier"`
	JobRef                   string  `json:"job_ref"`
	VehicleReg               string  `json:"vehicle_reg"`
	Date                     string  `json:"date"`
	ExtractionConfidence     float64 `json:"extraction_confidence"`
}

// fileClassifier replays the sidecar classification verdict.
type fileClassifier struct{ s sidecar }

func (c fileClassifier) Classify(context.Context, []byte, string) (pipeline.Classification, error) {
	return pipeline.Classification{IsDocument: c.s.IsDocument, Confidence: c.s.ClassificationConfidence}, nil
}

// fileExtractor replays the sidecar extraction fields.
type fileExtractor struct{ s sidecar }

func (e fileExtractor) Extract(context.Context, []byte) (matcher.Extracted, error) {
	return matcher.Extracted{
		Supplier:   e.s.Supplier,
		JobRef:     e.s.JobRef,
		VehicleReg: e.s.VehicleReg,
		Date:       e.s.Date,
		Confidence: e.s.ExtractionConfidence,
	}, nil
}

// storeDirectory serves candidate jobs from the datastore's job records.
type storeDirectory struct{ c *core.Core }

func (d storeDirectory) Lookup(_ context.Context, jobRef, vehicleReg, date string) ([]matcher.Job, error) {
	records, err := d.c.Store.ListJobRecords(jobRef, vehicleReg, date)
	if err != nil {
		return nil, err
	}
	jobs := make([]matcher.Job, 0, len(records))
	for _, r := range records {
		jobs = append(jobs, matcher.Job{
			ID:           r.ID,
			JobRef:       r.JobRef,
			VehiclePlate: r.VehiclePlate,
			Supplier:     r.Supplier,
		})
	}
	return jobs, nil
}

func runProcess(ctx context.Context, settings *conf.Settings, documentPath, fieldsPath string) error {
	content, err := os.ReadFile(documentPath)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	if fieldsPath == "" {
		ext := filepath.Ext(documentPath)
		fieldsPath = documentPath[:len(documentPath)-len(ext)] + ".json"
	}
	fieldsData, err := os.ReadFile(fieldsPath)
	if err != nil {
		return fmt.Errorf("failed to read fields file: %w", err)
	}
	var s sidecar
	if err := json.Unmarshal(fieldsData, &s); err != nil {
		return fmt.Errorf("invalid fields file %s: %w", fieldsPath, err)
	}

	c, err := core.Build(settings)
	if err != nil {
		return err
	}
	defer c.Close()

	p := pipeline.New(
		fileClassifier{s},
		fileExtractor{s},
		storeDirectory{c},
		settings.Matching,
		c.Routing,
		c.Machine,
		c.Store,
		c.Sink,
	)

	out, err := p.Process(ctx, pipeline.Input{
		Content:  content,
		MimeType: mimeTypeFor(documentPath),
		Supplier: s.Supplier,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Document %s processed, final status %s\n", out.DocumentID, out.FinalStatus)
	for _, stage := range out.Stages {
		line := fmt.Sprintf("  %-10s %s", stage.Stage, stage.Status)
		if stage.Error != "" {
			line += " (" + stage.Error + ")"
		}
		fmt.Println(line)
	}
	if out.Decision != nil {
		fmt.Printf("Decision: %s (%s), confidence %.3f against threshold %.3f\n",
			out.Decision.Decision, out.Decision.Reason,
			out.Decision.OverallConfidence, out.Decision.Threshold)
	}
	return nil
}

func mimeTypeFor(path string) string {
	switch filepath.Ext(path) {
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	default:
		return "image/jpeg"
	}
}
