package main

import (
	"fmt"
	"os"
	"path/filepath"

	"docbreak/internal/export"
	"docbreak/internal/extractor"
	"docbreak/internal/store"

	"github.com/spf13/cobra"
)

func newProcessCmd() *cobra.Command {
	var category, xlsx string
	cmd := &cobra.Command{
		Use:   "process <file>",
		Short: "Extract a document and generate its breakdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			ft := extractor.DetectFileType(path)
			if ft == "" || ft == extractor.TypeZIP {
				return fmt.Errorf("%w: %s", extractor.ErrUnsupportedFormat, filepath.Ext(path))
			}
			svc, st, locator, err := rt.service()
			if err != nil {
				return err
			}
			defer locator.Close()

			doc, err := st.CreateDocument(filepath.Base(path), ft, path)
			if err != nil {
				return err
			}
			if category != "" {
				if _, err := st.UpdateDocument(doc.ID, func(d *store.Document) { d.Category = category }); err != nil {
					return err
				}
			}

			colorYellow.Printf("Processing %s...\n", doc.Name)
			b, err := svc.Process(cmd.Context(), doc.ID)
			if err != nil {
				return err
			}
			colorGreen.Printf("Breakdown %s by %s (%s)\n", b.ID, b.ModelUsed, b.Strategy)
			printSeparator()
			for i, sec := range b.Sections {
				fmt.Printf("%d. %s: %s\n", i+1, sec.Title, sec.Content)
				if sec.Source != nil {
					colorCyan.Printf("   source: %s\n", describe(*sec.Source))
				}
			}

			if xlsx != "" {
				data, err := export.BreakdownXLSX(b, map[string]string{doc.ID: doc.Name})
				if err != nil {
					return err
				}
				if err := os.WriteFile(xlsx, data, 0644); err != nil {
					return err
				}
				colorGreen.Printf("Wrote %s\n", xlsx)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "content category (general, academic, business, technical)")
	cmd.Flags().StringVar(&xlsx, "xlsx", "", "also export the breakdown to this XLSX file")
	return cmd
}
