// Package sheet reads the store roster out of a Google Sheet and appends
// tracker results back as timestamped columns.
package sheet

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/adonese/storewatch/track_fields"
)

// Client wraps the sheets API for a single spreadsheet.
type Client struct {
	svc     *sheets.Service
	SheetID string
	Tabs    []string
	Logger  *logrus.Logger
}

// New authenticates with the configured service account file.
func New(ctx context.Context, cfg track_fields.Config, logger *logrus.Logger) (*Client, error) {
	if cfg.SheetID == "" {
		return nil, errors.New("sheet_id is required")
	}
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(cfg.ServiceAccountPath),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{svc: svc, SheetID: cfg.SheetID, Tabs: cfg.InputTabs, Logger: logger}, nil
}

// TabNames returns the configured tabs, or every worksheet title when none
// were configured.
func (c *Client) TabNames(ctx context.Context) ([]string, error) {
	if len(c.Tabs) > 0 {
		return c.Tabs, nil
	}
	resp, err := c.svc.Spreadsheets.Get(c.SheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list tabs: %w", err)
	}
	var names []string
	for _, sh := range resp.Sheets {
		if sh.Properties != nil {
			names = append(names, sh.Properties.Title)
		}
	}
	return names, nil
}

// ReadGrid fetches the whole tab as strings.
func (c *Client) ReadGrid(ctx context.Context, tab string) ([][]string, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.SheetID, "'"+tab+"'").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", tab, err)
	}
	grid := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = fmt.Sprint(v)
		}
		grid[i] = cells
	}
	return grid, nil
}

// WriteColumn stamps the date into row 1 and the time into row 2 of the
// given column, then writes every result cell at its own row, all in one
// batch with USER_ENTERED semantics.
func (c *Client) WriteColumn(ctx context.Context, tab string, col int, dateStr, timeStr string, results map[int]string) error {
	data := []*sheets.ValueRange{
		{Range: CellRef(tab, 1, col), Values: [][]interface{}{{dateStr}}},
		{Range: CellRef(tab, 2, col), Values: [][]interface{}{{timeStr}}},
	}
	rows := make([]int, 0, len(results))
	for r := range results {
		rows = append(rows, r)
	}
	sort.Ints(rows)
	for _, r := range rows {
		data = append(data, &sheets.ValueRange{
			Range:  CellRef(tab, r, col),
			Values: [][]interface{}{{results[r]}},
		})
	}
	req := &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "USER_ENTERED",
		Data:             data,
	}
	if _, err := c.svc.Spreadsheets.Values.BatchUpdate(c.SheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("write %s column %s: %w", tab, ColName(col), err)
	}
	if c.Logger != nil {
		c.Logger.WithFields(logrus.Fields{"tab": tab, "column": ColName(col), "cells": len(results)}).Info("column written")
	}
	return nil
}
