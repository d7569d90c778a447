// Handsup sessions
//
// An admin creates a session with a list of queue names and gets two links:
// an admin link that shows live queue membership, and a guest link (also
// offered as a QR code) where guests pick a display name and raise or lower
// their hand in any queue.
//
// Routes:
//   - POST $prefix/generate           → create session, redirect to admin page
//   - GET  $prefix/admin/:id          → admin page
//   - GET  $prefix/admin/:id/ws       → admin WebSocket (snapshots, freeze)
//   - POST $prefix/admin/:id/close    → close the session
//   - POST $prefix/guest              → register a guest, set identity cookie
//   - GET  $prefix/guest/:id          → join form or guest page
//   - GET  $prefix/guest/:id/queues   → queue list as JSON
//   - GET  $prefix/guest/:id/qr       → PNG QR code of the guest link
//   - GET  $prefix/guest/:id/ws       → guest WebSocket (raise/lower)

package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Seednode/handsup/hands"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const (
	identityCookieName = "handsup_identity"

	roleAdmin = "admin"
	roleGuest = "guest"

	writeWait      = 5 * time.Second
	pingPeriod     = 15 * time.Second
	pongWait       = 2 * pingPeriod
	maxMessageSize = 4096
	sendBuffer     = 32
)

// Messages coming from clients
type ClientMessage struct {
	Type      string `json:"type"`                 // "raise_hand_event", "lower_hand_event", "freeze"
	ChannelID string `json:"channel_id,omitempty"` // all
	Frozen    *bool  `json:"frozen,omitempty"`     // freeze
}

// DataUpdateMessage carries a full snapshot to admins.
type DataUpdateMessage struct {
	Type string         `json:"type"` // "data_update"
	Data hands.Snapshot `json:"data"`
}

// QueuesMessage is sent to guests right after they connect.
type QueuesMessage struct {
	Type     string            `json:"type"` // "queues"
	Name     string            `json:"name"`
	Identity hands.Identity    `json:"identity"`
	Data     []hands.QueueInfo `json:"data"`
}

// AckMessage tells a guest what happened to their event.
type AckMessage struct {
	Type      string `json:"type"` // "ack"
	Kind      string `json:"kind"` // "raise" or "lower"
	ChannelID string `json:"channel_id"`
	OK        bool   `json:"ok"`
}

// SimpleMessage is for errors and notices sent to a single client.
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Client is one WebSocket connection, admin or guest. Outbound messages are
// queued on send and written by writePump, so pushing never blocks the
// session lock.
type Client struct {
	conn *websocket.Conn
	role string
	send chan any
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn, role string) *Client {
	return &Client{
		conn: conn,
		role: role,
		send: make(chan any, sendBuffer),
		done: make(chan struct{}),
	}
}

// Push implements hands.Conn.
func (c *Client) Push(s hands.Snapshot) bool {
	return c.enqueue(DataUpdateMessage{Type: "data_update", Data: s})
}

// Close implements hands.Conn.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *Client) enqueue(msg any) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) sendError(text string) {
	c.enqueue(SimpleMessage{Type: "error", Message: text})
}

// endSession tells the client its session is gone, then closes it.
func (c *Client) endSession() {
	c.enqueue(SimpleMessage{Type: "session_ended", Message: "This session has ended."})
	c.Close()
}

// guestConn is how a guest Client is tracked by its session. Closing it from
// the session side says goodbye first.
type guestConn struct {
	*Client
}

func (g guestConn) Close() {
	g.endSession()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// flush writes whatever is still queued, without waiting for more.
func (c *Client) flush() {
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

// readPump decodes client messages and hands them to handle until the
// connection fails or is closed.
func (c *Client) readPump(handle func(ClientMessage)) {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			var (
				syntaxErr *json.SyntaxError
				typeErr   *json.UnmarshalTypeError
			)
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.sendError("Malformed message.")
				continue
			}
			return
		}

		handle(msg)
	}
}

func parseAddress(ps httprouter.Params) (uuid.UUID, error) {
	id, err := uuid.Parse(ps.ByName("id"))
	if err != nil {
		return uuid.Nil, hands.ErrSessionNotFound
	}

	return id, nil
}

func (a *app) sessionByGuest(ps httprouter.Params) (*hands.Session, error) {
	addr, err := parseAddress(ps)
	if err != nil {
		return nil, err
	}

	return a.registry.LookupByGuestAddress(addr)
}

func (a *app) sessionByAdmin(ps httprouter.Params) (*hands.Session, error) {
	addr, err := parseAddress(ps)
	if err != nil {
		return nil, err
	}

	return a.registry.LookupByAdminAddress(addr)
}

// identityFor returns the verified identity carried by the request's cookie
// for session s.
func (a *app) identityFor(r *http.Request, s *hands.Session) (hands.Identity, error) {
	c, err := r.Cookie(identityCookieName)
	if err != nil {
		return hands.Identity{}, hands.ErrMalformedIdentity
	}

	return a.tokens.Verify(c.Value, s.GuestAddress())
}

func (a *app) guestPath(s *hands.Session) string {
	return a.cfg.prefix + "/guest/" + s.GuestAddress().String()
}

func (a *app) adminPath(s *hands.Session) string {
	return a.cfg.prefix + "/admin/" + s.AdminAddress().String()
}

func guestURL(r *http.Request, path string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	return scheme + "://" + r.Host + path
}

func (a *app) createSession(name string, queues []string) (*hands.Session, error) {
	s, err := a.registry.CreateSession(name, queues)
	if err != nil {
		return nil, err
	}

	a.metrics.sessionsCreated.Inc()
	a.metrics.sessionsActive.Inc()

	return s, nil
}

func serveGenerate(a *app) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if err := r.ParseForm(); err != nil {
			serveErrorPage(a.cfg, w, http.StatusBadRequest, "Invalid form submission.")
			return
		}

		s, err := a.createSession(r.PostFormValue("room_name"), hands.SplitQueueNames(r.PostFormValue("channels")))
		switch {
		case errors.Is(err, hands.ErrNoQueues):
			serveErrorPage(a.cfg, w, http.StatusBadRequest, "Please provide at least one queue name.")
			return
		case errors.Is(err, hands.ErrInvalidName):
			serveErrorPage(a.cfg, w, http.StatusBadRequest, "Please provide a session name.")
			return
		case err != nil:
			a.log.Error("create session", "err", err)
			serveErrorPage(a.cfg, w, http.StatusInternalServerError, "An error has occurred. Please try again.")
			return
		}

		a.log.Debug("created session from form", "name", s.Name(), "ip", realIP(r))

		http.Redirect(w, r, a.adminPath(s), http.StatusSeeOther)
	}
}

func serveAdminPage(a *app) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		s, err := a.sessionByAdmin(ps)
		if err != nil {
			serveErrorPage(a.cfg, w, http.StatusNotFound, "Error, room not found")
			return
		}

		renderPage(a, w, "admin.html", pageData{
			SessionName:  s.Name(),
			GuestAddress: s.GuestAddress().String(),
			AdminAddress: s.AdminAddress().String(),
			GuestURL:     guestURL(r, a.guestPath(s)),
		})
	}
}

func serveAdminClose(a *app) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		s, err := a.sessionByAdmin(ps)
		if err == nil {
			err = a.registry.CloseSession(s.GuestAddress())
		}
		if err != nil {
			serveErrorPage(a.cfg, w, http.StatusNotFound, "Error, room not found")
			return
		}

		http.Redirect(w, r, a.cfg.prefix+"/", http.StatusSeeOther)
	}
}

func serveAdminWS(a *app) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		s, err := a.sessionByAdmin(ps)
		if err != nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			a.log.Debug("admin upgrade failed", "err", err)
			return
		}

		client := newClient(conn, roleAdmin)
		go client.writePump()

		if err := s.Observer().Attach(client); err != nil {
			client.Close()
			return
		}

		a.metrics.connections.WithLabelValues(roleAdmin).Inc()
		a.log.Debug("admin connected", "session", s.GuestAddress(), "ip", realIP(r))

		client.readPump(func(msg ClientMessage) {
			a.handleAdminMessage(s, client, msg)
		})

		s.Observer().Detach(client)
		a.metrics.connections.WithLabelValues(roleAdmin).Dec()
		a.log.Debug("admin disconnected", "session", s.GuestAddress())
	}
}

func (a *app) handleAdminMessage(s *hands.Session, c *Client, msg ClientMessage) {
	switch msg.Type {
	case "freeze":
		ch, err := uuid.Parse(msg.ChannelID)
		if err != nil || msg.Frozen == nil {
			c.sendError("Invalid freeze request.")
			return
		}

		kind := "unfreeze"
		if *msg.Frozen {
			kind = "freeze"
		}

		err = s.SetFrozen(ch, *msg.Frozen)
		switch {
		case errors.Is(err, hands.ErrSessionNotFound):
			a.metrics.handEvents.WithLabelValues(kind, "error").Inc()
			c.endSession()
			return
		case errors.Is(err, hands.ErrQueueNotFound):
			a.metrics.handEvents.WithLabelValues(kind, "error").Inc()
			c.sendError("Unknown queue.")
			return
		case err != nil:
			a.metrics.handEvents.WithLabelValues(kind, "error").Inc()
			a.log.Error("admin event", "kind", kind, "err", err)
			return
		}

		a.metrics.handEvents.WithLabelValues(kind, "ok").Inc()
	default:
		// ignore unknown types
	}
}

func serveGuestRegister(a *app) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if err := r.ParseForm(); err != nil {
			serveErrorPage(a.cfg, w, http.StatusBadRequest, "Invalid form submission.")
			return
		}

		addr, err := uuid.Parse(r.PostFormValue("room_id"))
		if err != nil {
			serveErrorPage(a.cfg, w, http.StatusNotFound, "Error, room not found")
			return
		}

		s, err := a.registry.LookupByGuestAddress(addr)
		if err != nil {
			serveErrorPage(a.cfg, w, http.StatusNotFound, "Error, room not found")
			return
		}

		user, err := a.registry.RegisterGuest(addr, r.PostFormValue("name"))
		switch {
		case errors.Is(err, hands.ErrInvalidName):
			serveErrorPage(a.cfg, w, http.StatusBadRequest, "Please provide a display name.")
			return
		case errors.Is(err, hands.ErrSessionNotFound):
			serveErrorPage(a.cfg, w, http.StatusNotFound, "Error, room not found")
			return
		case err != nil:
			a.log.Error("register guest", "err", err)
			serveErrorPage(a.cfg, w, http.StatusInternalServerError, "An error has occurred. Please try again.")
			return
		}

		token, err := a.tokens.Issue(addr, user)
		if err != nil {
			a.log.Error("issue identity token", "err", err)
			serveErrorPage(a.cfg, w, http.StatusInternalServerError, "An error has occurred. Please try again.")
			return
		}

		cookie := &http.Cookie{
			Name:     identityCookieName,
			Value:    token,
			Path:     a.guestPath(s),
			HttpOnly: true,
			Secure:   a.cfg.scheme() == "https",
			SameSite: http.SameSiteLaxMode,
		}
		if a.cfg.tokenTTL > 0 {
			cookie.MaxAge = int(a.cfg.tokenTTL.Seconds())
		}
		http.SetCookie(w, cookie)

		a.metrics.guestsRegistered.Inc()
		a.log.Debug("guest registered", "session", addr, "name", user.Name, "ip", realIP(r))

		http.Redirect(w, r, a.guestPath(s), http.StatusSeeOther)
	}
}

func serveGuestPage(a *app) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		s, err := a.sessionByGuest(ps)
		if err != nil {
			serveErrorPage(a.cfg, w, http.StatusNotFound, "Error, room not found")
			return
		}

		data := pageData{
			SessionName:  s.Name(),
			GuestAddress: s.GuestAddress().String(),
		}

		if _, err := a.identityFor(r, s); err != nil {
			renderPage(a, w, "join.html", data)
			return
		}

		renderPage(a, w, "guest.html", data)
	}
}

func serveGuestQueues(a *app) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		s, err := a.sessionByGuest(ps)
		if err != nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(a.cfg, w)

		if err := json.NewEncoder(w).Encode(s.Queues()); err != nil {
			a.errs <- err
		}
	}
}

// QR handler: generates a PNG QR code for the session's guest link.
func serveGuestQR(a *app) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		s, err := a.sessionByGuest(ps)
		if err != nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(guestURL(r, a.guestPath(s)), qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(a.cfg, w)

		if _, err := w.Write(png); err != nil {
			a.errs <- err
		}
	}
}

func serveGuestWS(a *app) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		s, err := a.sessionByGuest(ps)
		if err != nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		user, err := a.identityFor(r, s)
		if err != nil {
			http.Error(w, "unknown guest, please join first", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			a.log.Debug("guest upgrade failed", "err", err)
			return
		}

		client := newClient(conn, roleGuest)
		go client.writePump()

		tracked := guestConn{client}
		if err := s.GuestConnected(user.ID, tracked); err != nil {
			client.endSession()
			return
		}

		a.metrics.connections.WithLabelValues(roleGuest).Inc()
		a.log.Debug("guest connected", "session", s.GuestAddress(), "name", user.Name, "ip", realIP(r))

		client.enqueue(QueuesMessage{
			Type:     "queues",
			Name:     s.Name(),
			Identity: user,
			Data:     s.Queues(),
		})

		client.readPump(func(msg ClientMessage) {
			a.handleGuestMessage(s, client, user, msg)
		})

		a.metrics.connections.WithLabelValues(roleGuest).Dec()
		a.log.Debug("guest disconnected", "session", s.GuestAddress(), "name", user.Name)

		remaining, generation := s.GuestDisconnected(user.ID, tracked)
		if remaining == 0 && a.cfg.guestTimeout > 0 {
			a.scheduleLower(s, user, generation, a.cfg.guestTimeout)
		}
	}
}

func (a *app) handleGuestMessage(s *hands.Session, c *Client, user hands.Identity, msg ClientMessage) {
	var (
		kind string
		op   func(hands.Identity, uuid.UUID) (bool, error)
	)

	switch msg.Type {
	case "raise_hand_event":
		kind, op = "raise", s.Raise
	case "lower_hand_event":
		kind, op = "lower", s.Lower
	default:
		return
	}

	ch, err := uuid.Parse(msg.ChannelID)
	if err != nil {
		a.metrics.handEvents.WithLabelValues(kind, "error").Inc()
		c.sendError("Unknown queue.")
		return
	}

	ok, err := op(user, ch)
	switch {
	case errors.Is(err, hands.ErrQueueNotFound):
		a.metrics.handEvents.WithLabelValues(kind, "error").Inc()
		c.sendError("Unknown queue.")
		return
	case errors.Is(err, hands.ErrSessionNotFound):
		a.metrics.handEvents.WithLabelValues(kind, "error").Inc()
		c.endSession()
		return
	case err != nil:
		a.metrics.handEvents.WithLabelValues(kind, "error").Inc()
		a.log.Error("guest event", "kind", kind, "err", err)
		return
	}

	result := "noop"
	if ok {
		result = "ok"
	}
	a.metrics.handEvents.WithLabelValues(kind, result).Inc()

	c.enqueue(AckMessage{
		Type:      "ack",
		Kind:      kind,
		ChannelID: ch.String(),
		OK:        ok,
	})
}

// scheduleLower waits for d, and if the guest has not connected again since
// the disconnect that produced generation, lowers them from every queue of s.
func (a *app) scheduleLower(s *hands.Session, user hands.Identity, generation uint64, d time.Duration) {
	time.AfterFunc(d, func() {
		if n := s.LowerAway(user.ID, generation); n > 0 {
			a.metrics.handEvents.WithLabelValues("auto_lower", "ok").Add(float64(n))
			a.log.Debug("lowered disconnected guest", "session", s.GuestAddress(), "name", user.Name, "queues", n)
		}
	})
}

func registerHands(a *app, mux *httprouter.Router) {
	prefix := a.cfg.prefix

	mux.POST(prefix+"/generate", serveGenerate(a))

	mux.GET(prefix+"/admin/:id", serveAdminPage(a))
	mux.GET(prefix+"/admin/:id/ws", serveAdminWS(a))
	mux.POST(prefix+"/admin/:id/close", serveAdminClose(a))

	mux.POST(prefix+"/guest", serveGuestRegister(a))
	mux.GET(prefix+"/guest/:id", serveGuestPage(a))
	mux.GET(prefix+"/guest/:id/queues", serveGuestQueues(a))
	mux.GET(prefix+"/guest/:id/qr", serveGuestQR(a))
	mux.GET(prefix+"/guest/:id/ws", serveGuestWS(a))
}
