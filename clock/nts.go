package clock

import (
	"context"
	"fmt"
	"time"

	"github.com/beevik/nts"
	"github.com/sirupsen/logrus"
)

const (
	// How often the client should request a new absolute time from the NTS
	// server.
	defaultPollPeriod = time.Hour

	// How often the client should retry failure.
	defaultRetryPeriod = 5 * time.Minute

	// How many consecutive failures the client should allow before trying a new server.
	maxConsecutiveFailures = 5
)

// A source of absolute time.
type Source interface {
	Query() (time.Time, error)
}

// Connects to the time server at addr.
type Dialer func(addr string) (Source, error)

// Dials an NTS server, performing the NTS key exchange.
func DialNTS(addr string) (Source, error) {
	session, err := nts.NewSession(addr)
	if err != nil {
		return nil, err
	}
	return ntsSource{session}, nil
}

type ntsSource struct {
	session *nts.Session
}

func (s ntsSource) Query() (time.Time, error) {
	resp, err := s.session.Query()
	if err != nil {
		return time.Time{}, err
	}
	return resp.Time, nil
}

// A reading of both NTS and system clocks.
type clockReading struct {
	nts    time.Time
	system time.Time
}

// Gets a clock reading from both the source and the system clock.
func readTime(src Source) (clockReading, error) {
	t, err := src.Query()
	if err != nil {
		return clockReading{}, fmt.Errorf("failed to query time from NTS server: %w", err)
	}

	// Read the system time after obtaining the NTS time in order to err on the
	// side of underestimating the current time.
	system := time.Now()
	return clockReading{nts: t, system: system}, nil
}

// State for regularly polling NTS.
type ntsPoller struct {
	addrs       []string
	dial        Dialer
	log         logrus.FieldLogger
	pollPeriod  time.Duration
	retryPeriod time.Duration

	source Source
	cell   *readingCell
}

// Creates a new source by trying to connect to each address in order.
func (p *ntsPoller) connect() (Source, error) {
	for _, addr := range p.addrs {
		src, err := p.dial(addr)
		if err == nil {
			p.log.WithField("server", addr).Info("Connected to NTS server")
			return src, nil
		}
		p.log.WithError(err).WithField("server", addr).Error("Failed to connect to NTS server")
	}
	return nil, fmt.Errorf("failed to connect to any NTS server")
}

// Updates the clock reading cell with new data, returning true on success.
//
// If reinit is true, a new NTS session is established before querying.
func (p *ntsPoller) pollOnce(reinit bool) bool {
	if reinit {
		src, err := p.connect()
		if err != nil {
			p.log.WithError(err).Error("Failed to re-establish NTS session")
			return false
		}
		p.source = src
	}

	reading, err := readTime(p.source)
	if err != nil {
		p.log.WithError(err).Warn("NTS poll failed")
		return false
	}
	p.cell.WithWrite(func(g *readingGuard) {
		g.Set(reading)
	})

	return true
}

// Periodically updates the clock reading cell until ctx is done.
//
// If polls fail consecutively, a new session will be established, possibly with
// a different server.
func (p *ntsPoller) PollLoop(ctx context.Context) {
	consecutiveFailures := 0
	for {
		var d time.Duration
		if consecutiveFailures > 0 {
			d = p.retryPeriod
		} else {
			d = p.pollPeriod
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(d):
		}

		if !p.pollOnce(consecutiveFailures >= maxConsecutiveFailures) {
			consecutiveFailures++
			continue
		}
		consecutiveFailures = 0
	}
}
