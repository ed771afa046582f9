package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/noah-isme/moracollect-api/internal/models"
	appErrors "github.com/noah-isme/moracollect-api/pkg/errors"
	"github.com/noah-isme/moracollect-api/pkg/export"
)

type statsLister interface {
	ListCollectionStats(ctx context.Context) ([]models.CollectionStats, error)
	ListItemStats(ctx context.Context, collectionID string) ([]models.ItemStats, error)
}

// StatsExport is a rendered stats report.
type StatsExport struct {
	Filename    string
	ContentType string
	Body        []byte
}

// StatsExportService renders aggregate counters for operators. Inactive
// catalog entries are included so historical counts stay visible.
type StatsExportService struct {
	stats statsLister
}

// NewStatsExportService constructs the service.
func NewStatsExportService(stats statsLister) *StatsExportService {
	return &StatsExportService{stats: stats}
}

// Export renders collection stats, or item stats when collectionID is set.
func (s *StatsExportService) Export(ctx context.Context, collectionID, format string) (*StatsExport, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = export.FormatCSV
	}

	var (
		table export.Table
		name  string
	)
	if collectionID == "" {
		rows, err := s.stats.ListCollectionStats(ctx)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load collection stats")
		}
		table = collectionStatsTable(rows)
		name = "collections"
	} else {
		rows, err := s.stats.ListItemStats(ctx, collectionID)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load item stats")
		}
		table = itemStatsTable(collectionID, rows)
		name = "items-" + collectionID
	}

	body, contentType, err := export.Render(format, table)
	if err != nil {
		if errors.Is(err, export.ErrUnsupportedFormat) {
			return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "format must be csv or pdf")
		}
		return nil, appErrors.Internal(err, "failed to render stats export")
	}
	return &StatsExport{
		Filename:    fmt.Sprintf("%s-stats.%s", name, format),
		ContentType: contentType,
		Body:        body,
	}, nil
}

func collectionStatsTable(rows []models.CollectionStats) export.Table {
	table := export.Table{
		Title:   "Collection contributions",
		Headers: []string{"collection_id", "title", "active", "items", "total_submissions", "unique_contributors"},
	}
	for _, r := range rows {
		table.Rows = append(table.Rows, []string{
			r.ID,
			r.Title,
			strconv.FormatBool(r.IsActive),
			strconv.Itoa(r.ItemCount),
			strconv.FormatInt(nonNegative(r.TotalSubmissions), 10),
			strconv.FormatInt(nonNegative(r.UniqueContributors), 10),
		})
	}
	return table
}

func itemStatsTable(collectionID string, rows []models.ItemStats) export.Table {
	table := export.Table{
		Title:   "Item contributions for " + collectionID,
		Headers: []string{"item_id", "text", "type", "active", "total_submissions", "unique_contributors"},
	}
	for _, r := range rows {
		table.Rows = append(table.Rows, []string{
			r.ID,
			r.Text,
			r.Type,
			strconv.FormatBool(r.IsActive),
			strconv.FormatInt(nonNegative(r.TotalSubmissions), 10),
			strconv.FormatInt(nonNegative(r.UniqueContributors), 10),
		})
	}
	return table
}
