package logger

import (
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// dailyFile rolls the log file over at the first write of each new day. lumberjack
// prunes rolled files older than its MaxAge.
type dailyFile struct {
	mu  sync.Mutex
	out *lumberjack.Logger
	day string
	now func() time.Time
}

func newDailyFile(path string, retentionDays int) *dailyFile {
	return &dailyFile{
		out: &lumberjack.Logger{
			Filename:  path,
			MaxAge:    retentionDays,
			LocalTime: true,
		},
		now: time.Now,
	}
}

func (d *dailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	day := d.now().Format(time.DateOnly)
	if d.day != "" && day != d.day {
		if err := d.out.Rotate(); err != nil {
			return 0, err
		}
	}
	d.day = day
	return d.out.Write(p)
}

func (d *dailyFile) Sync() error { return nil }

func (d *dailyFile) Close() error { return d.out.Close() }
