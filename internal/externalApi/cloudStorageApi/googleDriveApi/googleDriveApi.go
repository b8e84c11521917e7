package googleDriveApi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"time"

	"github.com/m0rkovka/portfolio_pulse_bot/config"
	"github.com/m0rkovka/portfolio_pulse_bot/utils"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const (
	downloadLinkTemplate = "https://drive.google.com/file/d/%s/view"
	ledgerFilename       = "transactions_master.csv"
)

type GoogleDriveApi struct {
	srv *drive.Service
	cfg *config.Config
}

func New(ctx context.Context, cfg *config.Config) *GoogleDriveApi {
	srv, err := drive.NewService(ctx, option.WithCredentialsFile(cfg.GoogleDrive.CredentialsFile))
	if err != nil {
		slog.Error("failed on drive.NewService")
		panic(err)
	}
	return &GoogleDriveApi{srv: srv, cfg: cfg}
}

// LoadLedger downloads the master transactions CSV from the configured
// folder. A missing file is not an error: it returns empty content, the
// state of a fresh install.
func (a *GoogleDriveApi) LoadLedger(ctx context.Context) ([]byte, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "GoogleDriveApi.LoadLedger"

	slog.Debug("LoadLedger start", slog.String("rqID", rqID), slog.String("op", op))

	fileID, err := a.findFile(ctx, ledgerFilename)
	if err != nil {
		slog.Error("failed searching ledger file", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}
	if fileID == "" {
		slog.Info("ledger file not found on drive", slog.String("rqID", rqID), slog.String("op", op))
		return []byte{}, nil
	}

	resp, err := a.srv.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		slog.Error("failed downloading ledger file", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Error("failed reading ledger file body", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	slog.Debug("LoadLedger completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("bytes", len(content)))

	return content, nil
}

// SaveLedger uploads the master transactions CSV, updating the existing
// file when present so the folder never accumulates copies.
func (a *GoogleDriveApi) SaveLedger(ctx context.Context, content []byte) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "GoogleDriveApi.SaveLedger"

	slog.Debug("SaveLedger start", slog.String("rqID", rqID), slog.String("op", op), slog.Int("bytes", len(content)))

	fileID, err := a.findFile(ctx, ledgerFilename)
	if err != nil {
		slog.Error("failed searching ledger file", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	if fileID != "" {
		_, err = a.srv.Files.
			Update(fileID, &drive.File{}).
			Media(bytes.NewReader(content)).
			Context(ctx).
			Do()
	} else {
		fileMeta := &drive.File{
			Name:    ledgerFilename,
			Parents: []string{a.cfg.GoogleDrive.FolderID},
		}
		_, err = a.srv.Files.
			Create(fileMeta).
			Media(bytes.NewReader(content)).
			Context(ctx).
			Do()
	}

	if err != nil {
		slog.Error("failed uploading ledger file", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	slog.Debug("SaveLedger completed", slog.String("rqID", rqID), slog.String("op", op))

	return nil
}

// UploadReport uploads a generated report and returns a shareable link.
func (a *GoogleDriveApi) UploadReport(ctx context.Context, reader io.Reader, filename string) (downloadLink string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "GoogleDriveApi.UploadReport"

	slog.Debug("UploadReport start", slog.String("rqID", rqID), slog.String("op", op), slog.String("filename", filename))

	mimeType := mime.TypeByExtension(filepath.Ext(filename))

	fileMeta := &drive.File{
		Name:     filename,
		MimeType: mimeType,
		Parents:  []string{a.cfg.GoogleDrive.FolderID},
	}

	uploadedFile, err := a.srv.Files.
		Create(fileMeta).
		Media(reader).
		Context(ctx).
		Do()
	if err != nil {
		slog.Error("failed on uploading report to google drive", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return "", err
	}

	perm := &drive.Permission{
		Type: "anyone",
		Role: "reader",
	}

	_, err = a.srv.Permissions.Create(uploadedFile.Id, perm).Do()
	if err != nil {
		slog.Error("failed on creating permission to uploaded report in google drive", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return "", err
	}

	slog.Debug("UploadReport completed", slog.String("rqID", rqID), slog.String("op", op))

	return fmt.Sprintf(downloadLinkTemplate, uploadedFile.Id), nil
}

// DeleteOldReports removes generated reports past the retention window.
// The ledger master file is never touched.
func (a *GoogleDriveApi) DeleteOldReports(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "GoogleDriveApi.DeleteOldReports"

	slog.Debug("DeleteOldReports start", slog.String("rqID", rqID), slog.String("op", op))

	r, err := a.srv.Files.List().
		Q(fmt.Sprintf("'%s' in parents and trashed = false", a.cfg.GoogleDrive.FolderID)).
		Fields("files(id, name, createdTime)").
		Context(ctx).
		Do()
	if err != nil {
		slog.Error("failed on getting files", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	deletedFiles := 0
	for _, f := range r.Files {
		if f.Name == ledgerFilename {
			continue
		}

		createdTime, err := time.Parse(time.RFC3339, f.CreatedTime)
		if err != nil {
			slog.Error(
				"failed parse time",
				slog.String("rqID", rqID),
				slog.String("op", op),
				slog.String("err", err.Error()),
				slog.String("fileID", f.Id),
				slog.String("createdTime", f.CreatedTime),
			)
			continue
		}

		if createdTime.Before(time.Now().Add(-1 * a.cfg.GoogleDrive.ReportTTL)) {
			if err = a.srv.Files.Delete(f.Id).Do(); err != nil {
				slog.Error(
					"failed delete file",
					slog.String("rqID", rqID),
					slog.String("op", op),
					slog.String("err", err.Error()),
					slog.String("fileID", f.Id),
				)
				continue
			}
			deletedFiles++
		}
	}

	slog.Info("delete old reports done", slog.Int("deletedFiles", deletedFiles))

	return nil
}

func (a *GoogleDriveApi) findFile(ctx context.Context, filename string) (string, error) {
	query := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", filename, a.cfg.GoogleDrive.FolderID)

	results, err := a.srv.Files.List().
		Q(query).
		Spaces("drive").
		Fields("files(id, name)").
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}

	if len(results.Files) == 0 {
		return "", nil
	}

	return results.Files[0].Id, nil
}
