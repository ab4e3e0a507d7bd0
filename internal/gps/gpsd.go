package gps

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"time"
)

const DefaultGPSDAddr = "127.0.0.1:2947"

const (
	gpsdWatchEnable  = "?WATCH={\"enable\":true,\"json\":true,\"scaled\":true}\n"
	gpsdWatchDisable = "?WATCH={\"enable\":false}\n"
)

// Session is a subscription to a location provider.
type Session interface {
	// Watch enables streaming reports. Safe to call repeatedly.
	Watch() error
	Unwatch() error
	// Wait blocks up to timeout and reports whether a Read will return data
	// without blocking.
	Wait(timeout time.Duration) (bool, error)
	// Read returns one decoded report. A *InvalidFixPayload error is
	// recoverable; any other error is not.
	Read() (Update, error)
	Close() error
}

// GPSDSession speaks the gpsd JSON protocol over TCP.
type GPSDSession struct {
	addr string
	conn net.Conn
	r    *bufio.Reader

	// ReadTimeout bounds completing a report once Wait reported data.
	ReadTimeout time.Duration

	st gpsdState
}

// DialGPSD connects to gpsd over TCP.
func DialGPSD(ctx context.Context, addr string, timeout time.Duration) (*GPSDSession, error) {
	if strings.TrimSpace(addr) == "" {
		addr = DefaultGPSDAddr
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	d := &net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ProviderConnectError{Addr: addr, Err: err}
	}
	return newGPSDSession(addr, conn), nil
}

func newGPSDSession(addr string, conn net.Conn) *GPSDSession {
	return &GPSDSession{
		addr:        addr,
		conn:        conn,
		r:           bufio.NewReaderSize(conn, 16*1024),
		ReadTimeout: 5 * time.Second,
	}
}

func (s *GPSDSession) Addr() string { return s.addr }

func (s *GPSDSession) Watch() error {
	_, err := s.conn.Write([]byte(gpsdWatchEnable))
	return err
}

func (s *GPSDSession) Unwatch() error {
	_, err := s.conn.Write([]byte(gpsdWatchDisable))
	return err
}

func (s *GPSDSession) Wait(timeout time.Duration) (bool, error) {
	if s.r.Buffered() > 0 {
		return true, nil
	}
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return false, err
	}
	_, err := s.r.Peek(1)
	_ = s.conn.SetReadDeadline(time.Time{})
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *GPSDSession) Read() (Update, error) {
	if s.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
		defer func() { _ = s.conn.SetReadDeadline(time.Time{}) }()
	}
	line, err := s.r.ReadBytes('\n')
	if err != nil {
		return Update{}, &ProviderReadError{Op: "read", Err: err}
	}
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Update{Kind: NoUpdate}, nil
	}
	return s.st.applyLine(time.Now().UTC(), line)
}

func (s *GPSDSession) Close() error {
	return s.conn.Close()
}

type gpsdMsgBase struct {
	Class string `json:"class"`
}

type gpsdTPV struct {
	Class string `json:"class"`
	Mode  *int   `json:"mode"`
	Time  string `json:"time"`

	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`

	Alt     *float64 `json:"alt"`
	AltMSL  *float64 `json:"altMSL"`
	SpeedMS *float64 `json:"speed"`
	Track   *float64 `json:"track"`
}

type gpsdSat struct {
	Used bool `json:"used"`
}

type gpsdSKY struct {
	Class      string    `json:"class"`
	Satellites []gpsdSat `json:"satellites"`
	USat       *int      `json:"uSat"` // some gpsd versions
}

type gpsdErrorMsg struct {
	Message string `json:"message"`
}

// gpsdState carries what SKY reports leave behind for the next TPV.
type gpsdState struct {
	satsUsed int
	satsOK   bool
}

func (s *gpsdState) applyLine(nowUTC time.Time, line []byte) (Update, error) {
	var base gpsdMsgBase
	if err := json.Unmarshal(line, &base); err != nil {
		return Update{}, &InvalidFixPayload{Line: string(line), Err: fmt.Errorf("json parse failed: %v", err)}
	}

	switch strings.ToUpper(strings.TrimSpace(base.Class)) {
	case "TPV":
		var tpv gpsdTPV
		if err := json.Unmarshal(line, &tpv); err != nil {
			return Update{}, &InvalidFixPayload{Line: string(line), Err: fmt.Errorf("tpv parse failed: %v", err)}
		}
		return Update{Kind: FixAvailable, Fix: s.fixFromTPV(nowUTC, tpv)}, nil
	case "SKY":
		var sky gpsdSKY
		if err := json.Unmarshal(line, &sky); err != nil {
			return Update{}, &InvalidFixPayload{Line: string(line), Err: fmt.Errorf("sky parse failed: %v", err)}
		}
		s.applySKY(sky)
		return Update{Kind: NoUpdate}, nil
	case "ERROR":
		var msg gpsdErrorMsg
		_ = json.Unmarshal(line, &msg)
		return Update{}, &ProviderReadError{Op: "report", Err: fmt.Errorf("gpsd error: %s", msg.Message)}
	default:
		// VERSION/DEVICES/WATCH and friends carry no position.
		return Update{Kind: NoUpdate}, nil
	}
}

func (s *gpsdState) fixFromTPV(nowUTC time.Time, tpv gpsdTPV) Fix {
	fix := Fix{Lat: math.NaN(), Lon: math.NaN(), Time: nowUTC}

	if tpv.Mode != nil {
		fix.Status = *tpv.Mode
	}
	if strings.TrimSpace(tpv.Time) != "" {
		if t, err := time.Parse(time.RFC3339Nano, tpv.Time); err == nil {
			fix.Time = t.UTC()
		}
	}
	if tpv.Lat != nil {
		fix.Lat = *tpv.Lat
	}
	if tpv.Lon != nil {
		fix.Lon = *tpv.Lon
	}

	if tpv.SpeedMS != nil {
		// gpsd scaled speed is m/s.
		v := (*tpv.SpeedMS) * 1.9438444924406
		fix.GroundKt = &v
	}
	if tpv.Track != nil {
		v := *tpv.Track
		fix.TrackDeg = &v
	}
	altM := tpv.AltMSL
	if altM == nil {
		altM = tpv.Alt
	}
	if altM != nil {
		v := int(math.Round((*altM) * 3.280839895013123))
		fix.AltFeet = &v
	}
	if s.satsOK {
		v := s.satsUsed
		fix.Satellites = &v
	}
	return fix
}

func (s *gpsdState) applySKY(sky gpsdSKY) {
	if sky.USat != nil {
		s.satsUsed = *sky.USat
		s.satsOK = true
		return
	}
	if len(sky.Satellites) > 0 {
		used := 0
		for _, sat := range sky.Satellites {
			if sat.Used {
				used++
			}
		}
		s.satsUsed = used
		s.satsOK = true
	}
}
