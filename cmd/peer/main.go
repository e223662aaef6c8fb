// Command peer is a headless participant: it joins a room on the relay and
// negotiates a WebRTC connection with whoever else is there.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/duo/internal/adapters/rtc"
	"github.com/dkeye/duo/internal/client"
	"github.com/dkeye/duo/internal/config"
	"github.com/dkeye/duo/internal/domain"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	url := flag.String("url", cfg.SignalURL, "relay websocket url")
	room := flag.String("room", "", "room id to join")
	user := flag.String("user", "", "user id")
	name := flag.String("name", "", "display name")
	share := flag.Duration("share", 0, "share a screen track after this delay (0 disables)")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	if *room == "" || *user == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conn, err := client.Dial(ctx, *url, nil)
	if err != nil {
		log.Fatal().Err(err).Str("url", *url).Msg("dial relay")
	}
	defer conn.Close()

	pcCfg := rtc.Config(cfg.ICEServers)
	agent := client.NewAgent(conn, func(remote domain.ConnectionID) (client.Peer, error) {
		pc, err := rtc.NewReceivingConnection(pcCfg, remote)
		if err != nil {
			return nil, err
		}
		return pc, nil
	}, *user, *name)

	if err := agent.Join(*room); err != nil {
		log.Fatal().Err(err).Msg("join")
	}

	if *share > 0 {
		go func() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(*share):
			}
			track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "screen", "duo-"+*user)
			if err != nil {
				log.Error().Err(err).Msg("create screen track")
				return
			}
			if err := agent.ShareScreen(track); err != nil {
				log.Error().Err(err).Msg("share screen")
			}
		}()
	}

	go func() {
		<-ctx.Done()
		_ = agent.Leave()
		_ = conn.Close()
	}()

	if err := agent.Run(ctx, conn); err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
		log.Error().Err(err).Msg("relay connection lost")
		os.Exit(1)
	}
	log.Info().Msg("peer exited")
}
