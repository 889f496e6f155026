package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"

	"github.com/sungwon/mailrelay/internal/auth"
	"github.com/sungwon/mailrelay/internal/bootstrap"
	"github.com/sungwon/mailrelay/internal/config"
	"github.com/sungwon/mailrelay/internal/logger"
	smtpserver "github.com/sungwon/mailrelay/internal/smtp"
)

func main() {
	cfg, err := config.Load("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Options("smtp-server"))
	log.Info().Msg("starting SMTP submission server")

	if len(cfg.Auth.APIKeys) == 0 {
		log.Fatal().Msg("no API keys configured; SMTP clients authenticate with an API key. Generate one with: mailctl apikey generate <name>")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build mailer")
	}
	defer stack.Close()

	if stack.DB != nil {
		go stack.DB.ReportPoolStats(ctx, 15*time.Second)
	}

	backend := smtpserver.NewBackend(stack.Service, auth.NewKeySet(cfg.Auth.APIKeys), log, cfg.SMTP.Limits())

	s := gosmtp.NewServer(backend)
	s.Addr = cfg.SMTP.Addr()
	s.Domain = cfg.SMTP.Domain
	s.ReadTimeout = cfg.SMTP.ReadTimeout
	s.WriteTimeout = cfg.SMTP.WriteTimeout
	s.MaxMessageBytes = cfg.SMTP.MaxMessageSize
	s.MaxRecipients = cfg.SMTP.MaxRecipients
	s.AllowInsecureAuth = cfg.SMTP.AllowInsecureAuth
	s.EnableSMTPUTF8 = true

	if cfg.SMTP.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.SMTP.CertFile, cfg.SMTP.KeyFile)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load TLS certificate")
		}
		s.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		log.Info().Msg("STARTTLS enabled")
	} else if !cfg.SMTP.AllowInsecureAuth {
		log.Warn().Msg("no TLS certificate and allow_insecure_auth is off; clients will not be able to authenticate")
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", s.Addr).Msg("failed to listen")
	}

	go func() {
		log.Info().Str("addr", s.Addr).Msg("SMTP server listening")
		if err := s.Serve(ln); err != nil {
			log.Error().Err(err).Msg("SMTP server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down SMTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.SMTP.ShutdownTimeout)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("SMTP server shutdown error")
	}
	// Flush provider stats written by in-flight sends.
	stack.Service.Mailer().Wait()

	log.Info().Msg("SMTP server stopped")
}
