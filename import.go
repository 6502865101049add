package goCartes

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrEthical07/goCartes/api"
	"github.com/MrEthical07/goCartes/permission"
)

// ValidateImportFile checks a spreadsheet before upload: extension in
// Config.Import.AllowedExtensions, non-empty, at most Config.Import.MaxFileSize bytes.
func (c *Client) ValidateImportFile(name string, size int64) error {
	ext := strings.ToLower(filepath.Ext(name))
	allowed := false
	for _, a := range c.config.Import.AllowedExtensions {
		if ext == strings.ToLower(a) {
			allowed = true
			break
		}
	}
	if !allowed {
		return api.ValidationError("Format de fichier non supporté. Utilisez " + strings.Join(c.config.Import.AllowedExtensions, " ou "))
	}
	if size <= 0 {
		return api.ValidationError("Le fichier est vide")
	}
	if size > c.config.Import.MaxFileSize {
		return api.ValidationError(fmt.Sprintf("Fichier trop volumineux (maximum %d Mo)", c.config.Import.MaxFileSize>>20))
	}
	return nil
}

// ImportCartes uploads a spreadsheet of cartes and returns the backend's summary.
// The inventory cache is dropped whether or not every row was accepted.
func (c *Client) ImportCartes(ctx context.Context, name string, r io.Reader, size int64) (ImportResult, error) {
	if err := c.require(ctx, permission.CartesImport); err != nil {
		return ImportResult{}, err
	}
	if err := c.ValidateImportFile(name, size); err != nil {
		return ImportResult{}, err
	}

	start := c.now()
	var out ImportResult
	resp, err := c.api.Upload(ctx, "/import-export/import", "file", filepath.Base(name), io.LimitReader(r, size), &out)
	if err != nil {
		c.metrics.Inc(MetricImportFailure)
		return ImportResult{}, err
	}
	if resp.NotFound {
		c.metrics.Inc(MetricImportFailure)
		return ImportResult{}, api.NewError(api.KindServer, "Service d'import indisponible", resp.Status, nil)
	}
	out.Duration = c.now().Sub(start)

	c.invalidateInventory()
	c.metrics.Inc(MetricImportSuccess)
	c.logger.Info().
		Str("file", filepath.Base(name)).
		Int("imported", out.Imported).
		Int("updated", out.Updated).
		Int("skipped", out.Skipped).
		Int("row_errors", len(out.Errors)).
		Dur("duration", out.Duration).
		Msg("import finished")
	return out, nil
}

// DownloadTemplate streams the empty import workbook into w.
func (c *Client) DownloadTemplate(ctx context.Context, w io.Writer) error {
	if err := c.require(ctx, permission.CartesExport); err != nil {
		return err
	}
	resp, err := c.api.Download(ctx, "/import-export/template", w)
	if err != nil {
		return err
	}
	if resp.NotFound {
		return api.NewError(api.KindServer, "Modèle introuvable", resp.Status, nil)
	}
	return nil
}

// TemplateFileName is the file name offered for a template downloaded on day t.
func TemplateFileName(t time.Time) string {
	return "modele-import-cartes-" + t.Format("2006-01-02") + ".xlsx"
}
