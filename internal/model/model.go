// Package model defines all shared domain types for Fleetwatch.
package model

import "time"

// ServerStatus is the aggregate health label for a server, derived from its
// most recent metric snapshot.
type ServerStatus int

const (
	StatusUnknown ServerStatus = iota
	StatusOnline
	StatusOffline
	StatusWarning
	StatusCritical
	StatusMaintenance
)

func (s ServerStatus) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusOffline:
		return "offline"
	case StatusWarning:
		return "warning"
	case StatusCritical:
		return "critical"
	case StatusMaintenance:
		return "maintenance"
	default:
		return "unknown"
	}
}

// AlertStatus is the lifecycle state of an alert.
// Valid transitions: Active → Acknowledged → Resolved → Expired, and
// Active → Resolved directly. There is no transition out of Expired;
// a re-triggered condition becomes a new alert row.
type AlertStatus int

const (
	AlertActive AlertStatus = iota
	AlertAcknowledged
	AlertResolved
	AlertExpired
)

func (s AlertStatus) String() string {
	switch s {
	case AlertActive:
		return "active"
	case AlertAcknowledged:
		return "acknowledged"
	case AlertResolved:
		return "resolved"
	case AlertExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// AlertSeverity is the importance level of an alert.
type AlertSeverity int

const (
	SeverityInfo AlertSeverity = iota
	SeverityWarning
	SeverityCritical
)

func (s AlertSeverity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "info"
	}
}

// Thresholds holds the per-server warning/critical boundaries for each
// resource type, in percent.
type Thresholds struct {
	CPUWarning     float64 `json:"cpu_warning"`
	CPUCritical    float64 `json:"cpu_critical"`
	MemoryWarning  float64 `json:"memory_warning"`
	MemoryCritical float64 `json:"memory_critical"`
	DiskWarning    float64 `json:"disk_warning"`
	DiskCritical   float64 `json:"disk_critical"`
}

// DefaultThresholds returns the boundaries applied to newly registered
// servers.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CPUWarning:     70,
		CPUCritical:    90,
		MemoryWarning:  70,
		MemoryCritical: 90,
		DiskWarning:    80,
		DiskCritical:   95,
	}
}

// Server is a monitored machine. The collection pipeline only ever mutates
// Status; everything else is operator-managed.
type Server struct {
	ID              int64        `json:"id"`
	Name            string       `json:"name"`
	HostName        string       `json:"host_name"`
	IPAddress       string       `json:"ip_address,omitempty"`
	Description     string       `json:"description,omitempty"`
	Location        string       `json:"location,omitempty"`
	OperatingSystem string       `json:"operating_system,omitempty"`
	Status          ServerStatus `json:"status"`
	IsActive        bool         `json:"is_active"`
	// IsHost marks the single record that represents the physical machine
	// this process runs on. Only relevant in host sampling mode.
	IsHost     bool `json:"is_host"`
	Thresholds      // per-server alert boundaries
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MetricSnapshot is one immutable point-in-time resource reading for a
// server. Snapshots are append-only history; they are never updated.
type MetricSnapshot struct {
	ID                int64     `json:"id"`
	ServerID          int64     `json:"server_id"`
	CPUPct            float64   `json:"cpu_pct"`
	MemoryPct         float64   `json:"memory_pct"`
	DiskPct           float64   `json:"disk_pct"`
	MemoryUsedBytes   int64     `json:"memory_used_bytes"`
	MemoryTotalBytes  int64     `json:"memory_total_bytes"`
	NetInBytesPerSec  float64   `json:"net_in_bps"`
	NetOutBytesPerSec float64   `json:"net_out_bps"`
	Processes         int       `json:"processes"`
	UptimeSecs        float64   `json:"uptime_secs"`
	Timestamp         time.Time `json:"timestamp"`

	// Disks carries the per-volume readings taken in the same cycle. They
	// are persisted as independent rows, not columns of the snapshot record.
	Disks []DiskSnapshot `json:"disks,omitempty"`
}

// DiskSnapshot is one volume's reading within a collection cycle.
type DiskSnapshot struct {
	ID        int64     `json:"id"`
	ServerID  int64     `json:"server_id"`
	Volume    string    `json:"volume"`
	FreeMB    int64     `json:"free_mb"`
	TotalMB   int64     `json:"total_mb"`
	UsedPct   float64   `json:"used_pct"`
	Timestamp time.Time `json:"timestamp"`
}

// Alert records a threshold violation and tracks it from triggering to
// resolution.
type Alert struct {
	ID             int64         `json:"id"`
	ServerID       int64         `json:"server_id"`
	Title          string        `json:"title"`
	Message        string        `json:"message"`
	Status         AlertStatus   `json:"status"`
	Severity       AlertSeverity `json:"severity"`
	MetricType     string        `json:"metric_type"`
	MetricValue    float64       `json:"metric_value"`
	ThresholdValue float64       `json:"threshold_value"`
	CreatedAt      time.Time     `json:"created_at"`
	AcknowledgedAt *time.Time    `json:"acknowledged_at,omitempty"`
	AcknowledgedBy *string       `json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time    `json:"resolved_at,omitempty"`
	ResolvedBy     *string       `json:"resolved_by,omitempty"`
	Resolution     string        `json:"resolution,omitempty"`
}

// LatestMetrics is the cached/broadcast view of a server's most recent
// snapshot, annotated with the aggregate status derived from it.
type LatestMetrics struct {
	MetricSnapshot
	Status string `json:"status"`
}

// ReportStatus is the processing state of a report record.
type ReportStatus int

const (
	ReportPending ReportStatus = iota
	ReportProcessing
	ReportCompleted
	ReportFailed
)

// ReportSchedule describes a recurring report: a standard cron expression
// plus bookkeeping for when it last ran and when it is next due.
type ReportSchedule struct {
	ID          int64      `json:"id"`
	ServerID    int64      `json:"server_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	CronExpr    string     `json:"cron_expr"`
	IsActive    bool       `json:"is_active"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	NextRunAt   time.Time  `json:"next_run_at"`
	CreatedBy   string     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Report is a pending unit of downstream report work enqueued by the
// schedule dispatcher. Generation itself happens outside this service.
type Report struct {
	ID          int64        `json:"id"`
	ScheduleID  *int64       `json:"schedule_id,omitempty"`
	ServerID    int64        `json:"server_id"`
	Title       string       `json:"title"`
	Status      ReportStatus `json:"status"`
	RangeStart  time.Time    `json:"range_start"`
	RangeEnd    time.Time    `json:"range_end"`
	RequestedBy string       `json:"requested_by,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}
