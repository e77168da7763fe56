package console

import (
	"fmt"
	"sync"
	"time"
)

// Reporter prints loop telemetry to the console.
type Reporter struct {
	mx      sync.Mutex
	last    float64
	changes int
	now     func() time.Time
}

func NewReporter() *Reporter {
	return &Reporter{now: time.Now}
}

func (r *Reporter) ReportTemperature(celsius float64) {
	r.mx.Lock()
	r.last = celsius
	r.mx.Unlock()
	PInfof(PictoThermometer, "%s °C", White(formatCelsius(celsius)))
}

func (r *Reporter) ReportAlertChange() {
	r.mx.Lock()
	r.changes++
	n, last := r.changes, r.last
	r.mx.Unlock()
	PInfof(PictoBell, "%s the temperature state has changed (last reading %s °C, change #%d)",
		Yellow(r.now().Format(time.TimeOnly)), formatCelsius(last), n)
}

// Changes returns the number of reported alert changes.
func (r *Reporter) Changes() int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.changes
}

func formatCelsius(c float64) string {
	return fmt.Sprintf("%.2f", c)
}
