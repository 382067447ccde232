package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"docbreak/internal/annotation"
	"docbreak/internal/extractor"

	"github.com/spf13/cobra"
)

func newExtractCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Extract text and pointer map from a PDF, DOCX, DOC, TXT or ZIP file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			path := args[0]
			ft := extractor.DetectFileType(path)
			if ft == extractor.TypeZIP {
				entries, err := rt.ext.ExtractBundle(cmd.Context(), path)
				if err != nil {
					return err
				}
				for _, e := range entries {
					if e.Err != nil {
						colorRed.Printf("x %s: %v\n", e.Name, e.Err)
						continue
					}
					if err := printDocument(e.Document, asJSON); err != nil {
						return err
					}
				}
				return nil
			}
			doc, err := rt.ext.Extract(cmd.Context(), path, ft)
			if err != nil {
				return err
			}
			return printDocument(doc, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the document as JSON")
	return cmd
}

func printDocument(doc *extractor.Document, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}
	colorCyan.Printf("%s (%s)\n", doc.Name, doc.FileType)
	printSeparator()
	fmt.Println(doc.Text)
	printSeparator()
	fmt.Printf("runes: %d, map entries: %d (%s)\n", doc.PointerMap.End(), len(doc.PointerMap.Entries()), doc.PointerMap.Type)
	return nil
}

func newResolveCmd() *cobra.Command {
	var start, end int
	cmd := &cobra.Command{
		Use:   "resolve <file>",
		Short: "Map a character range of the extracted text back to page, line or paragraph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			doc, err := rt.ext.Extract(cmd.Context(), args[0], extractor.DetectFileType(args[0]))
			if err != nil {
				return err
			}
			loc := annotation.Resolve(doc.PointerMap, start, end)
			if loc.IsZero() {
				colorYellow.Printf("%s [%d,%d): no location\n", filepath.Base(args[0]), start, end)
				return nil
			}
			fmt.Printf("%s [%d,%d): %s\n", filepath.Base(args[0]), start, end, describe(loc))
			return nil
		},
	}
	cmd.Flags().IntVar(&start, "start", 0, "start offset in runes")
	cmd.Flags().IntVar(&end, "end", 0, "end offset in runes")
	cmd.MarkFlagRequired("end")
	return cmd
}

func describe(loc annotation.Location) string {
	switch {
	case loc.Page > 0 && loc.Line > 0:
		return fmt.Sprintf("page %d, line %d", loc.Page, loc.Line)
	case loc.Page > 0:
		return fmt.Sprintf("page %d", loc.Page)
	case loc.Paragraph > 0:
		return fmt.Sprintf("paragraph %d", loc.Paragraph)
	default:
		return fmt.Sprintf("line %d", loc.Line)
	}
}
