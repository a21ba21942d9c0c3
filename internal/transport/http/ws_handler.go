package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"assessment-service/internal/app"
	"assessment-service/internal/domain"
	"assessment-service/internal/engine"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type WSHandler struct {
	service     *app.AssessmentService
	log         logrus.FieldLogger
	defaultMode engine.Mode
	upgrader    websocket.Upgrader
}

func NewWSHandler(service *app.AssessmentService, log logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		service:     service,
		log:         log,
		defaultMode: engine.ModeReview,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	Index      *int   `json:"index"`
	Text       string `json:"text"`
}

var errInvalidAnswer = errors.New("invalid answer payload")

// answer converts the payload; a text-only answer carries no option index.
func (p answerPayload) answer() (domain.Answer, error) {
	if p.Index == nil && p.Text == "" {
		return domain.Answer{}, errInvalidAnswer
	}
	a := domain.Answer{Index: -1, Text: p.Text}
	if p.Index != nil {
		a.Index = *p.Index
	}
	return a, nil
}

type gotoPayload struct {
	Index int `json:"index"`
}

type visibilityPayload struct {
	Hidden bool `json:"hidden"`
}

type sessionPayload struct {
	SessionID string                  `json:"sessionId"`
	Scope     string                  `json:"scope"`
	Title     string                  `json:"title,omitempty"`
	Mode      engine.Mode             `json:"mode"`
	Questions []domain.PublicQuestion `json:"questions"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
}

// ServeWS opens an assessment session for the learner and bridges it to a websocket. The
// session is abandoned when the socket closes.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	scope := r.URL.Query().Get("scope")
	learnerID := r.URL.Query().Get("learnerId")
	if scope == "" || learnerID == "" {
		http.Error(w, "missing scope or learnerId", http.StatusBadRequest)
		return
	}
	mode := h.defaultMode
	if raw := r.URL.Query().Get("mode"); raw != "" {
		parsed, err := engine.ParseMode(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mode = parsed
	}

	session, err := h.service.Open(r.Context(), learnerID, scope, mode)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrLoadFailed) || errors.Is(err, domain.ErrServiceClosed) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}
	defer h.service.Close(session.ID)

	logger := h.log.WithFields(logrus.Fields{"session": session.ID, "learner": learnerID, "scope": scope})

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	ctrl := session.Controller
	updates, cancel, err := ctrl.Subscribe()
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer; gorilla connections do not support concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				logger.WithError(err).Debug("ws write error")
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "session", Payload: sessionPayload{
		SessionID: session.ID,
		Scope:     scope,
		Title:     ctrl.Config().Title,
		Mode:      ctrl.Mode(),
		Questions: ctrl.Bank().Public(),
	}}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					// session closed by the service; end the read loop too
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
						time.Now().Add(time.Second))
					_ = conn.Close()
					return
				}
				select {
				case send <- outboundMessage[any]{Type: string(update.Type), Payload: update}:
				case <-writerDone:
					return
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if err := h.dispatch(ctrl, inbound); err != nil {
			select {
			case send <- errorMessage(err):
			case <-writerDone:
			}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
	logger.Debug("ws session closed")
}

var errUnsupportedMessage = errors.New("unsupported message type")

// dispatch applies one inbound message. Successful operations report back through the
// controller's update feed.
func (h *WSHandler) dispatch(ctrl *engine.Controller, inbound inboundMessage) error {
	switch inbound.Type {
	case "start":
		return ctrl.Start()
	case "answer":
		var p answerPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return errInvalidAnswer
		}
		a, err := p.answer()
		if err != nil {
			return err
		}
		_, err = ctrl.SelectAnswer(p.QuestionID, a)
		return err
	case "goto":
		var p gotoPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return errors.New("invalid goto payload")
		}
		return ctrl.GoToQuestion(p.Index)
	case "visibility":
		var p visibilityPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return errors.New("invalid visibility payload")
		}
		return ctrl.ReportVisibility(p.Hidden)
	case "submit":
		_, err := ctrl.Submit()
		return err
	case "restart":
		return ctrl.Restart()
	default:
		return errUnsupportedMessage
	}
}
