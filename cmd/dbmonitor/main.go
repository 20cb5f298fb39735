// Command dbmonitor is a read-only terminal dashboard for a running
// dbdriverd process: it polls the admin HTTP surface's /restful/stats
// endpoint and renders queue depth, worker pool occupancy and journal size
// as live gauges and sparklines.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
)

type statsPayload struct {
	Retcode int `json:"retcode"`
	Payload struct {
		Queue struct {
			Depth    int `json:"depth"`
			Enqueued int `json:"enqueued"`
			Dequeued int `json:"dequeued"`
			Expired  int `json:"expired"`
			Rejected int `json:"rejected"`
		} `json:"queue"`
		WorkerPool struct {
			Size        int `json:"size"`
			QueuedTasks int `json:"queued_tasks"`
		} `json:"worker_pool"`
		Journal *struct {
			Path      string `json:"path"`
			SizeBytes int64  `json:"size_bytes"`
		} `json:"journal"`
	} `json:"payload"`
}

func main() {
	addr := flag.String("addr", "http://127.0.0.1:9090", "admin HTTP surface base address")
	interval := flag.Duration("interval", time.Second, "poll interval")
	flag.Parse()

	if err := termui.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize termui: %v\n", err)
		os.Exit(1)
	}
	defer termui.Close()

	httpClient := &http.Client{Timeout: 5 * time.Second}

	title := widgets.NewParagraph()
	title.Text = "dbdriverd monitor — " + *addr
	title.TextStyle.Fg = termui.ColorGreen
	title.Border = false

	queueGauge := widgets.NewGauge()
	queueGauge.Title = "Queue depth"
	queueGauge.BarColor = termui.ColorYellow

	poolGauge := widgets.NewGauge()
	poolGauge.Title = "Worker pool queued tasks"
	poolGauge.BarColor = termui.ColorCyan

	depthHistory := widgets.NewSparkline()
	depthHistory.Title = "Queue depth history"
	depthHistory.LineColor = termui.ColorMagenta
	depthGroup := widgets.NewSparklineGroup(depthHistory)

	detail := widgets.NewParagraph()
	detail.Title = "Counters"

	instructions := widgets.NewParagraph()
	instructions.Text = "Press q to quit"
	instructions.Border = false

	grid := termui.NewGrid()
	termWidth, termHeight := termui.TerminalDimensions()
	grid.SetRect(0, 0, termWidth, termHeight)
	grid.Set(
		termui.NewRow(1.0/10, title),
		termui.NewRow(2.0/10, termui.NewCol(1.0/2, queueGauge), termui.NewCol(1.0/2, poolGauge)),
		termui.NewRow(3.0/10, depthGroup),
		termui.NewRow(3.0/10, detail),
		termui.NewRow(1.0/10, instructions),
	)

	history := make([]float64, 0, 64)
	refresh := func() {
		stats, err := fetchStats(httpClient, *addr)
		if err != nil {
			detail.Text = fmt.Sprintf("error polling %s: %v", *addr, err)
			termui.Render(grid)
			return
		}

		depthPercent := 0
		if stats.Payload.Queue.Depth > 0 {
			depthPercent = stats.Payload.Queue.Depth
			if depthPercent > 100 {
				depthPercent = 100
			}
		}
		queueGauge.Percent = depthPercent

		poolPercent := 0
		if stats.Payload.WorkerPool.QueuedTasks > 0 {
			poolPercent = stats.Payload.WorkerPool.QueuedTasks
			if poolPercent > 100 {
				poolPercent = 100
			}
		}
		poolGauge.Percent = poolPercent

		history = append(history, float64(stats.Payload.Queue.Depth))
		if len(history) > 64 {
			history = history[len(history)-64:]
		}
		depthHistory.Data = history

		journalLine := "journal: disabled"
		if stats.Payload.Journal != nil {
			journalLine = fmt.Sprintf("journal: %s (%d bytes)", stats.Payload.Journal.Path, stats.Payload.Journal.SizeBytes)
		}
		detail.Text = fmt.Sprintf(
			"enqueued: %d  dequeued: %d  expired: %d  rejected: %d\npool size: %d  queued tasks: %d\n%s",
			stats.Payload.Queue.Enqueued, stats.Payload.Queue.Dequeued,
			stats.Payload.Queue.Expired, stats.Payload.Queue.Rejected,
			stats.Payload.WorkerPool.Size, stats.Payload.WorkerPool.QueuedTasks,
			journalLine,
		)

		termui.Render(grid)
	}

	refresh()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	uiEvents := termui.PollEvents()

	for {
		select {
		case e := <-uiEvents:
			switch e.ID {
			case "q", "<C-c>":
				return
			case "<Resize>":
				payload := e.Payload.(termui.Resize)
				grid.SetRect(0, 0, payload.Width, payload.Height)
				termui.Render(grid)
			}
		case <-ticker.C:
			refresh()
		}
	}
}

func fetchStats(httpClient *http.Client, addr string) (*statsPayload, error) {
	resp, err := httpClient.Get(addr + "/restful/stats")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var stats statsPayload
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, err
	}
	if stats.Retcode != 0 {
		return nil, fmt.Errorf("admin surface returned retcode %d", stats.Retcode)
	}
	return &stats, nil
}
