// The wsserver binary is the push deployment shape: one instance holding
// live WebSocket connections, with in-process state and NATS room fan-out
// for chat, signaling and typing events.
package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/zingo/pair-server/internal/config"
	"github.com/zingo/pair-server/internal/engine"
	"github.com/zingo/pair-server/internal/identity"
	"github.com/zingo/pair-server/internal/matchmaking"
	"github.com/zingo/pair-server/internal/messaging"
	"github.com/zingo/pair-server/internal/metrics"
	"github.com/zingo/pair-server/internal/presence"
	"github.com/zingo/pair-server/internal/protocol"
	"github.com/zingo/pair-server/internal/relay"
	"github.com/zingo/pair-server/internal/report"
	"github.com/zingo/pair-server/internal/ws"
)

func main() {
	cfg := config.Load()

	wsConfig := ws.ServerConfig{
		ListenAddr:     cfg.ListenAddr,
		WorkerPoolSize: cfg.WorkerPoolSize,
		MaxConnections: cfg.MaxConnections,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
	}

	// --- NATS ---
	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = cfg.ServerName
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// --- Reports (optional) ---
	var reports *report.Store
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("failed to open postgres: %v", err)
		}
		if err := report.Migrate(db); err != nil {
			log.Fatalf("report migrations failed: %v", err)
		}
		reports = report.NewStore(db)
	} else {
		log.Printf("POSTGRES_DSN not set, reports will be logged only")
	}

	engCfg := engine.Config{
		PresenceThreshold: cfg.PresenceThreshold,
		QueueMaxAge:       cfg.QueueMaxAge,
		SweepInterval:     cfg.SweepInterval,
	}
	eng := engine.New(engCfg,
		presence.NewMemoryTracker(),
		matchmaking.NewMemoryQueue(),
		matchmaking.NewMemoryRegistry(),
		relay.NewMemoryStore(),
	)
	identities := identity.NewRegistry()

	log.Printf("pair push server starting")
	log.Printf("  listen_addr:     %s", wsConfig.ListenAddr)
	log.Printf("  worker_pool:     %d", wsConfig.WorkerPoolSize)
	log.Printf("  max_connections: %d", wsConfig.MaxConnections)
	log.Printf("  nats_url:        %s", natsConfig.URL)
	log.Printf("  server_name:     %s", cfg.ServerName)

	// Declare server early so closures can capture it.
	var server *ws.Server

	// broadcastCount pushes the current online count to every connection.
	broadcastCount := func() {
		msg, err := protocol.NewServerMessage(protocol.TypeUpdateCount, protocol.UpdateCountMsg{
			Count: server.Connections().Count(),
		})
		if err != nil {
			return
		}
		server.Connections().Broadcast(msg)
	}

	// subscribeToRoom wires a local connection into its match's room subject.
	// Chat messages are echoed to everyone in the room including the sender;
	// signals and typing indicators skip the sender.
	subscribeToRoom := func(uid, roomID string) {
		if err := natsClient.SubscribeToRoom(roomID, uid, func(data []byte) {
			event, err := messaging.DecodeRoomEvent(data)
			if err != nil {
				log.Printf("[room-sub] unmarshal error for uid=%s: %v", uid, err)
				return
			}

			switch event.Type {
			case messaging.EventChatMessage:
				resp, _ := protocol.NewServerMessage(protocol.TypeServerChatMessage, protocol.ServerChatMsg{
					Text:   event.Text,
					Sender: identities.Lookup(event.From),
				})
				if err := server.SendMessage(uid, resp); err != nil {
					log.Printf("[room-sub] send chat to %s failed: %v", uid, err)
				}

			case messaging.EventSignal:
				if event.From == uid {
					return
				}
				resp, _ := protocol.NewServerMessage(protocol.TypeServerSignal, protocol.ServerSignalMsg{
					Payload: event.Payload,
					Sender:  identities.Lookup(event.From),
				})
				_ = server.SendMessage(uid, resp)

			case messaging.EventTyping:
				if event.From == uid {
					return
				}
				resp, _ := protocol.NewServerMessage(protocol.TypePartnerTyping, protocol.PartnerTypingMsg{
					IsTyping: event.IsTyping,
					Sender:   identities.Lookup(event.From),
				})
				_ = server.SendMessage(uid, resp)

			case messaging.EventPartnerLeft:
				if event.From == uid {
					return
				}
				resp, _ := protocol.NewServerMessage(protocol.TypePartnerDisconnected, protocol.PartnerDisconnectedMsg{})
				_ = server.SendMessage(uid, resp)
				_ = natsClient.UnsubscribeFromRoom(uid)
			}
		}); err != nil {
			log.Printf("[room-sub] subscribe room=%s for uid=%s failed: %v", roomID, uid, err)
		}
	}

	// leaveRoom publishes partner_left on uid's current room, if any, before
	// the match is dissolved, and drops uid's subscription.
	leaveRoom := func(ctx context.Context, uid string) {
		m, err := eng.Match(ctx, uid)
		if err == nil && m != nil {
			event := messaging.RoomEvent{
				Type: messaging.EventPartnerLeft,
				From: uid,
				Ts:   time.Now().Unix(),
			}
			if data, err := event.Encode(); err == nil {
				_ = natsClient.PublishRoomEvent(m.RoomID, data)
			}
		}
		_ = natsClient.UnsubscribeFromRoom(uid)
	}

	dispatcher := ws.NewMessageDispatcher(nil)

	// -----------------------------------------------------------------------
	// find_partner — request pairing or stop the current session
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeFindPartner, func(conn *ws.Connection, msg interface{}) {
		findMsg, ok := msg.(protocol.FindPartnerMsg)
		if !ok {
			return
		}
		uid := conn.UID
		ctx := context.Background()

		if findMsg.Stop {
			leaveRoom(ctx, uid)
			if _, err := eng.RequestPartner(ctx, uid, true); err != nil {
				log.Printf("stop failed uid=%s: %v", uid, err)
				dispatcher.SendError(conn, "internal_error", "stop failed")
				return
			}
			resp, _ := protocol.NewServerMessage(protocol.TypeStopped, protocol.StoppedMsg{})
			conn.WriteMessage(resp)
			log.Printf("stop from uid=%s", uid)
			return
		}

		result, err := eng.RequestPartner(ctx, uid, false)
		if err != nil {
			log.Printf("find_partner failed uid=%s: %v", uid, err)
			dispatcher.SendError(conn, "internal_error", "pairing failed")
			return
		}

		switch result.Status {
		case engine.StatusWaiting:
			resp, _ := protocol.NewServerMessage(protocol.TypeWaiting, protocol.WaitingMsg{
				Message: "waiting for a partner",
			})
			conn.WriteMessage(resp)

		case engine.StatusMatched:
			subscribeToRoom(uid, result.RoomID)

			if result.Initiator {
				// The requester closed the match and initiates the
				// connection handshake; the taken waiter joins the room.
				resp, _ := protocol.NewServerMessage(protocol.TypeFoundPartner, protocol.FoundPartnerMsg{
					RoomID:          result.RoomID,
					Initiator:       true,
					PartnerIdentity: identities.Lookup(result.PartnerUID),
				})
				conn.WriteMessage(resp)

				subscribeToRoom(result.PartnerUID, result.RoomID)
				joinMsg, _ := protocol.NewServerMessage(protocol.TypeJoinPrivateRoom, protocol.JoinPrivateRoomMsg{
					RoomID:          result.RoomID,
					PartnerIdentity: identities.Lookup(uid),
				})
				if err := server.SendMessage(result.PartnerUID, joinMsg); err != nil {
					log.Printf("join_private_room to %s failed: %v", result.PartnerUID, err)
				}
			} else {
				// Re-query of an existing match.
				resp, _ := protocol.NewServerMessage(protocol.TypeFoundPartner, protocol.FoundPartnerMsg{
					RoomID:          result.RoomID,
					Initiator:       false,
					PartnerIdentity: identities.Lookup(result.PartnerUID),
				})
				conn.WriteMessage(resp)
			}
			log.Printf("find_partner uid=%s matched partner=%s room=%s", uid, result.PartnerUID, result.RoomID)
		}
	})

	// -----------------------------------------------------------------------
	// signal — relay a connection-negotiation payload to the room
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeSignal, func(conn *ws.Connection, msg interface{}) {
		signalMsg, ok := msg.(protocol.SignalMsg)
		if !ok {
			return
		}
		uid := conn.UID
		ctx := context.Background()

		m, err := eng.Match(ctx, uid)
		if err != nil || m == nil {
			dispatcher.SendError(conn, "not_matched", "no active partner")
			return
		}

		event := messaging.RoomEvent{
			Type:    messaging.EventSignal,
			From:    uid,
			Payload: signalMsg.Payload,
			Ts:      time.Now().Unix(),
		}
		data, _ := event.Encode()
		_ = natsClient.PublishRoomEvent(m.RoomID, data)
	})

	// -----------------------------------------------------------------------
	// chat_message — publish to the room; echoed back to the sender too
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeChatMessage, func(conn *ws.Connection, msg interface{}) {
		chatMsg, ok := msg.(protocol.ChatMsg)
		if !ok {
			return
		}
		uid := conn.UID
		ctx := context.Background()

		if chatMsg.Text == "" {
			return
		}

		m, err := eng.Match(ctx, uid)
		if err != nil || m == nil {
			dispatcher.SendError(conn, "not_matched", "no active partner")
			return
		}

		event := messaging.RoomEvent{
			Type: messaging.EventChatMessage,
			From: uid,
			Text: relay.BoundMessage(chatMsg.Text),
			Ts:   time.Now().Unix(),
		}
		data, _ := event.Encode()
		_ = natsClient.PublishRoomEvent(m.RoomID, data)
		metrics.RelayItemsTotal.WithLabelValues(string(relay.KindMessage)).Inc()
	})

	// -----------------------------------------------------------------------
	// typing — relay the typing indicator, sender excluded
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeTyping, func(conn *ws.Connection, msg interface{}) {
		typingMsg, ok := msg.(protocol.TypingMsg)
		if !ok {
			return
		}
		uid := conn.UID

		m, err := eng.Match(context.Background(), uid)
		if err != nil || m == nil {
			return
		}

		event := messaging.RoomEvent{
			Type:     messaging.EventTyping,
			From:     uid,
			IsTyping: typingMsg.IsTyping,
			Ts:       time.Now().Unix(),
		}
		data, _ := event.Encode()
		_ = natsClient.PublishRoomEvent(m.RoomID, data)
	})

	// -----------------------------------------------------------------------
	// report_user — report the current partner
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeReportUser, func(conn *ws.Connection, msg interface{}) {
		reportMsg, ok := msg.(protocol.ReportUserMsg)
		if !ok {
			return
		}
		uid := conn.UID
		ctx := context.Background()

		if !report.ValidReason(reportMsg.Reason) {
			dispatcher.SendError(conn, "invalid_reason", "unknown report reason")
			return
		}

		m, err := eng.Match(ctx, uid)
		if err != nil || m == nil {
			dispatcher.SendError(conn, "not_matched", "no active partner to report")
			return
		}

		if reports != nil {
			err := reports.Create(ctx, &report.Report{
				ReporterUID: uid,
				ReportedUID: m.Partner(uid),
				RoomID:      m.RoomID,
				Reason:      reportMsg.Reason,
			})
			if err != nil {
				log.Printf("report persist failed uid=%s: %v", uid, err)
			}
		} else {
			log.Printf("report (log only): reporter=%s reported=%s reason=%s room=%s",
				uid, m.Partner(uid), reportMsg.Reason, m.RoomID)
		}
		metrics.ReportsFiledTotal.Inc()

		resp, _ := protocol.NewServerMessage(protocol.TypeReportReceived, protocol.ReportReceivedMsg{
			Status: "received",
		})
		conn.WriteMessage(resp)
	})

	// -----------------------------------------------------------------------
	// update_interests — accepted for client compatibility, pairing stays
	// interest-blind
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeUpdateInterests, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.UpdateInterestsMsg); ok {
			log.Printf("update_interests from uid=%s (%d tags, ignored)", conn.UID, len(m.Interests))
		}
	})

	// Every inbound frame doubles as a presence heartbeat.
	server = ws.NewServer(wsConfig, func(conn *ws.Connection, data []byte) {
		_, _ = eng.Announce(context.Background(), conn.UID)
		dispatcher.Dispatch(conn, data)
	})
	dispatcher.SetServer(server)
	server.SetMetricsHandler(metrics.Handler())

	server.SetOnConnect(func(conn *ws.Connection) {
		name := identities.Assign(conn.UID)
		_, _ = eng.Announce(context.Background(), conn.UID)

		resp, _ := protocol.NewServerMessage(protocol.TypeIdentityAssigned, protocol.IdentityAssignedMsg{
			Identity: name,
		})
		conn.WriteMessage(resp)

		broadcastCount()
	})

	server.SetOnDisconnect(func(uid string) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		leaveRoom(ctx, uid)
		if _, err := eng.Disconnect(ctx, uid); err != nil {
			log.Printf("disconnect cleanup failed uid=%s: %v", uid, err)
		}
		identities.Remove(uid)

		broadcastCount()
	})

	// Background sweep for matches both sides abandoned without a clean
	// disconnect.
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	go eng.StartSweep(sweepCtx)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		sweepCancel()
		natsClient.Close()
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
