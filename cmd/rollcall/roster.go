package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pavelanni/rollcall/internal/cache"
	appI18n "github.com/pavelanni/rollcall/internal/i18n"
	"github.com/pavelanni/rollcall/internal/importer"
	"github.com/pavelanni/rollcall/internal/model"
	"github.com/pavelanni/rollcall/internal/report"
	"github.com/pavelanni/rollcall/internal/stats"
	"github.com/pavelanni/rollcall/internal/store"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a CSV or XLSX roster into a class",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.String("teacher", "", "Email of the class owner (required)")
	f.String("class", "", "Class ID (required)")
	f.Bool("force", false, "Import even if this file was imported before")
	f.StringP("lang", "l", appI18n.DefaultLang, "Language of messages (ar, en)")
	addDBFlags(cmd)
	addCacheFlags(cmd, cache.KindNone)
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("teacher")
	_ = cmd.MarkFlagRequired("class")

	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export class statistics as XLSX or CSV",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("teacher", "", "Email of the class owner (required)")
	f.String("class", "", "Class ID (required)")
	f.String("format", "", "Report format (xlsx, csv); defaults to the output file extension, else xlsx")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.StringP("lang", "l", appI18n.DefaultLang, "Language of report headers (ar, en)")
	addDBFlags(cmd)
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("teacher")
	_ = cmd.MarkFlagRequired("class")

	return cmd
}

// ownedClass resolves a teacher by email and one of their classes.
func ownedClass(db *store.Store, email, classID string) (model.Class, error) {
	teacher, err := db.GetTeacherByEmail(email)
	if err != nil {
		return model.Class{}, fmt.Errorf("look up teacher: %w", err)
	}
	if teacher == nil {
		return model.Class{}, fmt.Errorf("no teacher with email %s", email)
	}
	class, err := db.GetClass(teacher.ID, classID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Class{}, fmt.Errorf("teacher %s has no class %s", email, classID)
	}
	return class, err
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx := appI18n.Context(cmd.Context(), v.GetString("lang"))

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	classCache, err := openCache(ctx, v)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}

	class, err := ownedClass(db, v.GetString("teacher"), v.GetString("class"))
	if err != nil {
		return err
	}

	n, err := importRoster(ctx, db, classCache, class, args[0], v.GetBool("force"))
	if err != nil {
		return err
	}
	if n > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), appI18n.Tp(ctx, "StudentsImported", n))
	}
	return nil
}

// importRoster adds the students of the file at path to class. A file whose
// content hash was already recorded for the class is skipped unless force
// is set. It returns the number of students added.
func importRoster(ctx context.Context, db *store.Store, c cache.Cache, class model.Class, path string, force bool) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}

	hash := sha256sum(data)
	storedHash, err := db.GetImportedFileHash(class.ID, path)
	if err != nil {
		return 0, fmt.Errorf("check import status for %s: %w", path, err)
	}
	if !force {
		if storedHash == hash {
			slog.Info("roster file unchanged, skipping", "path", path, "class_id", class.ID)
			return 0, nil
		}
		if storedHash != "" {
			slog.Warn("roster file changed since last import, skipping to avoid duplicate students; use --force to import anyway",
				"path", path, "class_id", class.ID)
			return 0, nil
		}
	}

	entries, err := importer.Parse(filepath.Base(path), bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	students, err := db.ImportStudents(class.ID, path, hash, entries)
	if err != nil {
		return 0, fmt.Errorf("insert students from %s: %w", path, err)
	}
	c.Invalidate(ctx, class.ID)
	return len(students), nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// exportFormat picks the report format from the flag or the output name.
func exportFormat(flag, output string) (report.Format, error) {
	if flag != "" {
		return report.ParseFormat(strings.ToLower(flag))
	}
	if strings.EqualFold(filepath.Ext(output), ".csv") {
		return report.FormatCSV, nil
	}
	return report.FormatXLSX, nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx := appI18n.Context(cmd.Context(), v.GetString("lang"))

	outPath := v.GetString("output")
	format, err := exportFormat(v.GetString("format"), outPath)
	if err != nil {
		return err
	}

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	class, err := ownedClass(db, v.GetString("teacher"), v.GetString("class"))
	if err != nil {
		return err
	}
	state, err := db.LoadClassState(class.TeacherID, class.ID)
	if err != nil {
		return fmt.Errorf("load class: %w", err)
	}

	rep := stats.Report(state)
	if outPath == "" || outPath == "-" {
		err = report.Write(ctx, cmd.OutOrStdout(), format, rep)
	} else {
		err = writeReportFile(ctx, outPath, format, rep)
	}
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	slog.Info("exported class report", "class_id", class.ID, "format", format, "output", outPath)
	return nil
}

// writeReportFile writes rep to path. A failed close is reported like a
// failed write.
func writeReportFile(ctx context.Context, path string, format report.Format, rep model.ClassReport) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output file: %w", cerr)
		}
	}()
	return report.Write(ctx, f, format, rep)
}
