package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/response"
)

type outcomeView struct {
	Event     string                 `json:"event,omitempty"`
	Outcome   attendance.OutcomeKind `json:"outcome"`
	Silent    bool                   `json:"silent"`
	StudentID string                 `json:"student_id,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Recorded  *attendance.Event      `json:"recorded,omitempty"`
}

func viewOf(o attendance.Outcome) outcomeView {
	return outcomeView{
		Outcome:   o.Kind,
		Silent:    o.Kind.Silent(),
		StudentID: o.StudentID,
		Message:   o.Message(),
		Recorded:  o.Event,
	}
}

type sessionView struct {
	SessionID string    `json:"session_id"`
	CourseID  string    `json:"course_id"`
	OpenedAt  time.Time `json:"opened_at"`
}

func (a *api) openScanSession(c *gin.Context) {
	sess, err := a.svc.OpenScanSession(c.Request.Context(), auth.InstructorID(c), c.Param("courseID"))
	if err != nil {
		a.fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, sessionView{SessionID: sess.ID, CourseID: sess.CourseID, OpenedAt: sess.OpenedAt})
}

type frameRequest struct {
	Text string `json:"text"`
}

// scanFrame processes one decoded frame. Rejections are reported in the
// outcome, not as HTTP errors.
func (a *api) scanFrame(c *gin.Context) {
	var req frameRequest
	if !a.bind(c, &req) {
		return
	}
	out, err := a.svc.ScanFrame(c.Request.Context(), auth.InstructorID(c), c.Param("sessionID"), req.Text)
	if err != nil {
		a.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, viewOf(out))
}

func (a *api) closeScanSession(c *gin.Context) {
	if err := a.svc.CloseScanSession(c.Request.Context(), auth.InstructorID(c), c.Param("sessionID")); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// Client frames on the scan stream.
type wsFrame struct {
	Action string `json:"action"` // "frame" or "ping"
	Text   string `json:"text"`
}

// wsSource adapts a websocket connection to attendance.FrameSource. Pings
// are answered inline; a closed connection ends the stream.
type wsSource struct {
	conn *websocket.Conn
}

func (s wsSource) Next(ctx context.Context) (attendance.Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return attendance.Frame{}, err
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
		var msg wsFrame
		if err := s.conn.ReadJSON(&msg); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) || errors.Is(err, io.EOF) {
				return attendance.Frame{}, io.EOF
			}
			return attendance.Frame{}, err
		}
		switch msg.Action {
		case "ping":
			if err := writeWS(s.conn, outcomeView{Event: "pong"}); err != nil {
				return attendance.Frame{}, err
			}
		case "frame", "":
			return attendance.Frame{Text: msg.Text}, nil
		}
	}
}

func writeWS(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(v)
}

// scanStream upgrades to a websocket carrying frames in and outcomes out,
// one outcome per frame in order.
func (a *api) scanStream(c *gin.Context) {
	sess, err := a.svc.ScanSession(auth.InstructorID(c), c.Param("sessionID"))
	if err != nil {
		a.fail(c, err)
		return
	}

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := a.log.With().Str("session_id", sess.ID).Logger()
	log.Info().Msg("scanner stream connected")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	stats, err := sess.Run(ctx, wsSource{conn: conn}, attendance.RunOptions{
		OnOutcome: func(o attendance.Outcome) {
			v := viewOf(o)
			v.Event = "outcome"
			if werr := writeWS(conn, v); werr != nil {
				log.Warn().Err(werr).Msg("scanner stream write failed")
				cancel()
			}
		},
	})
	switch {
	case errors.Is(err, attendance.ErrSessionClosed):
		_ = writeWS(conn, outcomeView{Event: "closed", Outcome: attendance.OutcomeUnavailable})
	case err != nil && !errors.Is(err, context.Canceled):
		log.Warn().Err(err).Msg("scanner stream read failed")
	}
	log.Info().Int("frames", stats.Frames).Msg("scanner stream disconnected")
}
