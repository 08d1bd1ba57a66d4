package domain

// Snapshot is the aggregated usage record stored in one bucket.
//
// The engine only interprets BeginTime and EndTime. The remaining fields are
// payload; they are touched by name during redaction (ClearChooserCounts),
// backup sanitization (SanitizeForBackup) and restore (MergeDeviceState).
type Snapshot struct {
	BeginTime int64 `json:"begin_time"`
	EndTime   int64 `json:"end_time"`

	// LastTimeSaved is the modification time of the bucket file after the
	// last write. It is not encoded.
	LastTimeSaved int64 `json:"last_time_saved,omitempty"`

	Packages            map[string]*PackageStats       `json:"packages,omitempty"`
	Configurations      map[string]*ConfigurationStats `json:"configurations,omitempty"`
	ActiveConfiguration string                         `json:"active_configuration,omitempty"`
	Events              []Event                        `json:"events,omitempty"`
}

// PackageStats holds per-package usage within a bucket.
type PackageStats struct {
	PackageName           string `json:"package_name"`
	BeginTime             int64  `json:"begin_time"`
	EndTime               int64  `json:"end_time"`
	LastTimeUsed          int64  `json:"last_time_used"`
	TotalTimeInForeground int64  `json:"total_time_in_foreground"`
	LaunchCount           int32  `json:"launch_count"`
	LastEvent             int32  `json:"last_event"`

	// ChooserCounts maps action -> category -> count. This is the
	// selection log that is redacted after the selection-log retention.
	ChooserCounts map[string]map[string]int32 `json:"chooser_counts,omitempty"`
}

// ConfigurationStats holds usage of one device configuration.
type ConfigurationStats struct {
	Configuration   string `json:"configuration"`
	BeginTime       int64  `json:"begin_time"`
	EndTime         int64  `json:"end_time"`
	LastTimeActive  int64  `json:"last_time_active"`
	TotalTimeActive int64  `json:"total_time_active"`
	ActivationCount int32  `json:"activation_count"`
}

// Event is a single usage event.
type Event struct {
	PackageName   string `json:"package_name"`
	ClassName     string `json:"class_name,omitempty"`
	TimeStamp     int64  `json:"time_stamp"`
	EventType     int32  `json:"event_type"`
	Configuration string `json:"configuration,omitempty"`
	ShortcutID    string `json:"shortcut_id,omitempty"`
}

// NewSnapshot creates an empty snapshot covering [beginTime, endTime).
func NewSnapshot(beginTime, endTime int64) *Snapshot {
	return &Snapshot{
		BeginTime:      beginTime,
		EndTime:        endTime,
		Packages:       make(map[string]*PackageStats),
		Configurations: make(map[string]*ConfigurationStats),
	}
}

// Validate checks the snapshot interval.
func (s *Snapshot) Validate() error {
	if s == nil {
		return ErrNilSnapshot
	}
	if s.EndTime <= s.BeginTime {
		return ErrInvalidInterval
	}
	return nil
}

// GetOrCreatePackage returns the stats of a package, creating it if needed.
func (s *Snapshot) GetOrCreatePackage(name string) *PackageStats {
	if s.Packages == nil {
		s.Packages = make(map[string]*PackageStats)
	}
	p, ok := s.Packages[name]
	if !ok {
		p = &PackageStats{
			PackageName: name,
			BeginTime:   s.BeginTime,
			EndTime:     s.EndTime,
		}
		s.Packages[name] = p
	}
	return p
}

// AddChooserCount increments the chooser count of a package.
func (p *PackageStats) AddChooserCount(action, category string, n int32) {
	if p.ChooserCounts == nil {
		p.ChooserCounts = make(map[string]map[string]int32)
	}
	byCategory, ok := p.ChooserCounts[action]
	if !ok {
		byCategory = make(map[string]int32)
		p.ChooserCounts[action] = byCategory
	}
	byCategory[category] += n
}

// ClearChooserCounts removes the selection log of every package and leaves
// all other payload untouched.
func (s *Snapshot) ClearChooserCounts() {
	for _, p := range s.Packages {
		if p == nil || p.ChooserCounts == nil {
			continue
		}
		clear(p.ChooserCounts)
	}
}

// HasChooserCounts reports whether any package carries a selection log.
func (s *Snapshot) HasChooserCounts() bool {
	for _, p := range s.Packages {
		if p != nil && len(p.ChooserCounts) > 0 {
			return true
		}
	}
	return false
}

// Shift moves every timestamp of the snapshot by delta milliseconds.
func (s *Snapshot) Shift(delta int64) {
	s.BeginTime += delta
	s.EndTime += delta
	for _, p := range s.Packages {
		if p == nil {
			continue
		}
		p.BeginTime += delta
		p.EndTime += delta
		if p.LastTimeUsed != 0 {
			p.LastTimeUsed += delta
		}
	}
	for _, c := range s.Configurations {
		if c == nil {
			continue
		}
		c.BeginTime += delta
		c.EndTime += delta
		if c.LastTimeActive != 0 {
			c.LastTimeActive += delta
		}
	}
	for i := range s.Events {
		s.Events[i].TimeStamp += delta
	}
}

// SanitizeForBackup strips device-specific and ephemeral fields.
func (s *Snapshot) SanitizeForBackup() {
	if s == nil {
		return
	}
	s.ActiveConfiguration = ""
	clear(s.Configurations)
	s.Events = s.Events[:0]
}

// MergeDeviceState merges a restored snapshot with the on-device snapshot of
// the same granularity and returns the record to store.
//
// Device identity and configuration state win over the backup; usage
// content comes from the backup. A nil restored snapshot yields nil: the
// bucket is dropped rather than recovered from device data.
func MergeDeviceState(restored, onDevice *Snapshot) *Snapshot {
	if onDevice == nil {
		return restored
	}
	if restored == nil {
		return nil
	}
	restored.ActiveConfiguration = onDevice.ActiveConfiguration
	if restored.Configurations == nil {
		restored.Configurations = make(map[string]*ConfigurationStats, len(onDevice.Configurations))
	}
	for k, v := range onDevice.Configurations {
		restored.Configurations[k] = v
	}
	restored.Events = onDevice.Events
	return restored
}
