// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

package session

import (
	"os"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/argus-vision/argus/internal/logging"
	"github.com/argus-vision/argus/internal/models"
)

// Snapshot is the aggregate control-surface status: every session plus
// process-level resource usage.
type Snapshot struct {
	Timestamp     time.Time              `json:"timestamp"`
	ActiveStreams int                    `json:"active_streams"`
	QueueDepth    int                    `json:"queue_depth"`
	MaxStreams    int                    `json:"max_streams"`
	CPUPercent    float64                `json:"cpu_percent"`
	RSSBytes      uint64                 `json:"rss_bytes"`
	Sessions      []models.SessionStatus `json:"sessions"`
}

// Status builds a point-in-time snapshot of every session.
func (o *Orchestrator) Status() Snapshot {
	o.mu.Lock()
	queuePos := make(map[*session]int, len(o.queue))
	for i, s := range o.queue {
		queuePos[s] = i + 1
	}
	sessions := make([]models.SessionStatus, 0, len(o.sessions))
	for _, s := range o.sessions {
		sessions = append(sessions, s.status(queuePos[s]))
	}
	snap := Snapshot{
		Timestamp:     time.Now(),
		ActiveStreams: o.active,
		QueueDepth:    len(o.queue),
		MaxStreams:    o.cfg.Sessions.MaxConcurrentStreams,
	}
	o.mu.Unlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CameraID < sessions[j].CameraID
	})
	snap.Sessions = sessions
	snap.CPUPercent, snap.RSSBytes = processUsage()
	return snap
}

// processUsage reads the daemon's own CPU and resident memory. Failures are
// tolerated: status never blocks on resource accounting.
func processUsage() (float64, uint64) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, 0
	}
	cpu, _ := proc.CPUPercent()
	var rss uint64
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		rss = mem.RSS
	}
	return cpu, rss
}

// logStatus emits the periodic operational summary.
func (o *Orchestrator) logStatus() {
	snap := o.Status()

	byState := make(map[models.SessionState]int)
	for _, s := range snap.Sessions {
		byState[s.State]++
	}

	logging.Info().
		Int("active_streams", snap.ActiveStreams).
		Int("queue_depth", snap.QueueDepth).
		Int("streaming", byState[models.SessionStreaming]).
		Int("reconnecting", byState[models.SessionReconnecting]).
		Int("error", byState[models.SessionError]).
		Float64("cpu_percent", snap.CPUPercent).
		Uint64("rss_bytes", snap.RSSBytes).
		Msg("session status")
}
