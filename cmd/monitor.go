package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"github.com/urfave/cli/v2"
	"github.com/webitel/im-chat-hub/internal/domain/model"
)

const monitorHistory = 60

func monitorCmd() *cli.Command {
	return &cli.Command{
		Name:    "monitor",
		Aliases: []string{"m"},
		Usage:   "Terminal dashboard of a running hub",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "url",
				Usage: "Stats endpoint of the hub",
				Value: "http://localhost:8080/api/v1/stats",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Polling interval",
				Value: time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			return runMonitor(c.Context, c.String("url"), c.Duration("interval"))
		},
	}
}

type statsClient struct {
	url  string
	http *http.Client
}

func (c *statsClient) fetch(ctx context.Context) (model.HubStats, error) {
	var stats model.HubStats

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return stats, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return stats, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stats, fmt.Errorf("stats endpoint returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return stats, fmt.Errorf("decode stats: %w", err)
	}
	return stats, nil
}

type dashboard struct {
	summary *widgets.Paragraph
	rooms   *widgets.Table
	spark   *widgets.Sparkline
	group   *widgets.SparklineGroup
	status  *widgets.Paragraph
	series  []float64
}

func newDashboard(url string) *dashboard {
	d := &dashboard{
		summary: widgets.NewParagraph(),
		rooms:   widgets.NewTable(),
		spark:   widgets.NewSparkline(),
		status:  widgets.NewParagraph(),
	}
	d.summary.Title = " im-chat-hub "
	d.rooms.Title = " Rooms "
	d.rooms.Rows = [][]string{{"room", "online"}}
	d.rooms.TextStyle = ui.NewStyle(ui.ColorWhite)
	d.rooms.RowSeparator = false
	d.spark.Title = "connections"
	d.spark.LineColor = ui.ColorGreen
	d.group = widgets.NewSparklineGroup(d.spark)
	d.group.Title = " Activity "
	d.status.Border = false
	d.status.Text = "polling " + url + "  (q to quit)"
	d.layout()
	return d
}

func (d *dashboard) layout() {
	w, h := ui.TerminalDimensions()
	d.summary.SetRect(0, 0, w/2, 7)
	d.group.SetRect(w/2, 0, w, 7)
	d.rooms.SetRect(0, 7, w, h-1)
	d.status.SetRect(0, h-1, w, h)
}

func (d *dashboard) update(stats model.HubStats) {
	d.summary.Text = fmt.Sprintf(
		"connections:   %d\nauthenticated: %d\nusers online:  %d\nuptime:        %s",
		stats.TotalConnections, stats.AuthenticatedConns, stats.TotalUsers, stats.Uptime,
	)

	d.series = append(d.series, float64(stats.TotalConnections))
	if len(d.series) > monitorHistory {
		d.series = d.series[len(d.series)-monitorHistory:]
	}
	d.spark.Data = d.series

	rows := [][]string{{"room", "online"}}
	for _, r := range stats.Rooms {
		rows = append(rows, []string{r.Name, strconv.Itoa(r.Online)})
	}
	d.rooms.Rows = rows
}

func (d *dashboard) fail(err error) {
	d.summary.Text = "unreachable: " + err.Error()
}

func (d *dashboard) render() {
	ui.Render(d.summary, d.group, d.rooms, d.status)
}

func runMonitor(ctx context.Context, url string, interval time.Duration) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("init terminal: %w", err)
	}
	defer ui.Close()

	client := &statsClient{url: url, http: &http.Client{Timeout: interval}}
	dash := newDashboard(url)

	refresh := func() {
		reqCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		stats, err := client.fetch(reqCtx)
		if err != nil {
			dash.fail(err)
		} else {
			dash.update(stats)
		}
		dash.render()
	}
	refresh()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	events := ui.PollEvents()

	for {
		select {
		case e := <-events:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			case "<Resize>":
				ui.Clear()
				dash.layout()
				dash.render()
			}
		case <-ticker.C:
			refresh()
		case <-ctx.Done():
			return nil
		}
	}
}
