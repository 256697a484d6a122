package cli

import (
	"github.com/schollz/progressbar/v3"

	"github.com/gmelodie/slowperipheral/driver"
)

// Progress drives a fragment-send progress bar purely from
// ack-retirement events; it never gates transmission. A single-packet
// send does not get a bar at all.
type Progress struct {
	bar *progressbar.ProgressBar
}

// NewProgress builds a Progress for a send of totalFragments packets.
func NewProgress(totalFragments int) *Progress {
	if totalFragments <= 1 {
		return &Progress{}
	}
	return &Progress{bar: progressbar.Default(int64(totalFragments), "sending")}
}

// Handle is an observer.Observable[driver.Event] subscriber.
func (p *Progress) Handle(e driver.Event) {
	if p.bar == nil {
		return
	}
	switch e.Kind {
	case driver.EventAckRetired:
		_ = p.bar.Add(e.RetiredCount)
	case driver.EventDisconnectComplete:
		_ = p.bar.Finish()
	}
}
