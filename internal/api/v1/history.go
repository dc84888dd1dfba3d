package v1

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/logcatd/internal/domain"
	"github.com/gosuda/logcatd/internal/export"
	"github.com/gosuda/logcatd/internal/logcat"
	"github.com/gosuda/logcatd/internal/prefs"
)

type HistoryInput struct {
	Serial    string    `path:"serial" minLength:"1" doc:"Device serial"`
	Since     time.Time `query:"since" doc:"Hide records logged before this instant (soft clear checkpoint)"`
	Formatted bool      `query:"formatted" doc:"Include display lines rendered with the current preferences"`
}

type HistoryBody struct {
	Records []domain.Record `json:"records"`
	Lines   []string        `json:"lines,omitempty"`
}

type HistoryOutput struct {
	Body HistoryBody
}

type ArchiveInput struct {
	Serial string    `path:"serial" minLength:"1" doc:"Device serial"`
	Since  time.Time `query:"since" doc:"Only records logged at or after this instant"`
	Limit  int       `query:"limit" minimum:"1" maximum:"10000" default:"1000" doc:"Maximum number of records"`
}

type ArchiveOutput struct {
	Body []domain.Record
}

type ExportInput struct {
	Serial   string `path:"serial" minLength:"1" doc:"Device serial"`
	Encoding string `query:"encoding" enum:"plain,zstd" default:"plain" doc:"Byte encoding of the export"`
}

type ExportOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

type GetPreferencesInput struct{}

type GetPreferencesOutput struct {
	Body prefs.Prefs
}

// RegisterHistoryRoutes serves the in-memory device history and, when
// archive is not nil, the persisted archive.
func RegisterHistoryRoutes(api huma.API, ingestor Ingestor, archive Archive, p prefs.Prefs, loc *time.Location) {
	formatter := logcat.NewFormatter(p.FormatOptions(), loc)

	huma.Register(api, huma.Operation{
		OperationID: "get-history",
		Method:      http.MethodGet,
		Path:        "/devices/{serial}/history",
		Summary:     "Get the buffered records of a device",
		Tags:        []string{"History"},
	}, func(_ context.Context, input *HistoryInput) (*HistoryOutput, error) {
		records, err := ingestor.History(input.Serial)
		if err != nil {
			return nil, deviceError("failed to read history", err)
		}

		if !input.Since.IsZero() {
			var filter logcat.RejectBeforeFilter
			filter.SetCheckpoint(domain.Header{Timestamp: input.Since})
			records = filter.Filter(records)
		}
		if records == nil {
			records = []domain.Record{}
		}

		body := HistoryBody{Records: records}
		if input.Formatted {
			body.Lines = make([]string, len(records))
			for i, rec := range records {
				body.Lines[i] = formatter.Format(rec)
			}
		}
		return &HistoryOutput{Body: body}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-history",
		Method:      http.MethodGet,
		Path:        "/devices/{serial}/export",
		Summary:     "Download the buffered records as display text",
		Tags:        []string{"History"},
	}, func(_ context.Context, input *ExportInput) (*ExportOutput, error) {
		enc, err := export.ParseEncoding(input.Encoding)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity("unknown encoding", err)
		}
		records, err := ingestor.History(input.Serial)
		if err != nil {
			return nil, deviceError("failed to read history", err)
		}

		var buf bytes.Buffer
		if err := export.Write(&buf, records, formatter, enc); err != nil {
			return nil, huma.Error500InternalServerError("failed to export history", err)
		}
		name := strings.NewReplacer(":", "_", "/", "_").Replace(input.Serial) + enc.Extension()
		return &ExportOutput{
			ContentType:        enc.ContentType(),
			ContentDisposition: fmt.Sprintf("attachment; filename=%q", name),
			Body:               buf.Bytes(),
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-preferences",
		Method:      http.MethodGet,
		Path:        "/preferences",
		Summary:     "Get the display preferences",
		Tags:        []string{"History"},
	}, func(_ context.Context, _ *GetPreferencesInput) (*GetPreferencesOutput, error) {
		return &GetPreferencesOutput{Body: p}, nil
	})

	if archive == nil {
		return
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-archive",
		Method:      http.MethodGet,
		Path:        "/devices/{serial}/archive",
		Summary:     "Get archived records of a device",
		Tags:        []string{"History"},
	}, func(ctx context.Context, input *ArchiveInput) (*ArchiveOutput, error) {
		records, err := archive.ListBySerial(ctx, input.Serial, input.Since, input.Limit)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to read archive", err)
		}
		if records == nil {
			records = []domain.Record{}
		}
		return &ArchiveOutput{Body: records}, nil
	})
}
