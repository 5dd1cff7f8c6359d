package dashboard

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"github.com/adonese/storewatch/apperr"
	"github.com/adonese/storewatch/track_fields"
)

var exportHeaders = []string{
	"Tab", "Row", "Brand", "Location", "Aggregator", "Link",
	"Status", "ETA", "Sold Out", "Error", "Checked At",
}

// Export streams checks as an XLSX workbook. With ?run=<id> it exports that
// cycle; without it, the latest status of every store.
func (s *Service) Export(c *gin.Context) {
	var (
		checks []track_fields.CheckResult
		name   string
		err    error
	)
	if runID := c.Query("run"); runID != "" {
		checks, err = s.Store.ChecksByRun(c.Request.Context(), runID)
		name = "run-" + runID
	} else {
		checks, err = s.Store.LatestStatuses(c.Request.Context())
		name = "latest"
	}
	if err != nil {
		s.abort(c, apperr.Wrap(err, apperr.ErrDatabase, "unable to read checks"))
		return
	}
	if len(checks) == 0 {
		s.abort(c, apperr.ErrNotFound)
		return
	}

	f, err := buildWorkbook(checks)
	if err != nil {
		s.abort(c, apperr.Wrap(err, apperr.ErrInternal, "unable to build workbook"))
		return
	}
	defer f.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=storewatch-%s.xlsx", name))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Status(http.StatusOK)
	if err := f.Write(c.Writer); err != nil {
		s.Logger.Printf("error streaming workbook: %v", err)
	}
}

// buildWorkbook renders one worksheet per roster tab, mirroring the layout
// of the source spreadsheet.
func buildWorkbook(checks []track_fields.CheckResult) (*excelize.File, error) {
	f := excelize.NewFile()

	byTab := map[string][]track_fields.CheckResult{}
	tabs := []string{}
	for _, chk := range checks {
		tab := chk.Tab
		if tab == "" {
			tab = "Checks"
		}
		if _, seen := byTab[tab]; !seen {
			tabs = append(tabs, tab)
		}
		byTab[tab] = append(byTab[tab], chk)
	}

	for i, tab := range tabs {
		if i == 0 {
			f.SetSheetName(f.GetSheetName(0), tab)
		} else {
			if _, err := f.NewSheet(tab); err != nil {
				return nil, err
			}
		}
		if err := fillSheet(f, tab, byTab[tab]); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func fillSheet(f *excelize.File, sheetName string, checks []track_fields.CheckResult) error {
	for i, h := range exportHeaders {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return err
		}
	}
	for r, chk := range checks {
		values := []any{
			chk.Tab, chk.Row, chk.Brand, chk.Location, chk.Aggregator,
			chk.Link, chk.Status, chk.ETA, chk.SoldOut, chk.Err,
			chk.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}
