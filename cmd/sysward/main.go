// Command sysward is a host-resident monitoring and self-healing daemon.
// It samples host telemetry on a fixed cadence, diagnoses it against
// configured thresholds, alerts operators, and runs bounded remediation for
// the problems it can fix itself.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"sysward/internal/advisor"
	"sysward/internal/agent"
	"sysward/internal/api"
	"sysward/internal/config"
	"sysward/internal/diagnose"
	"sysward/internal/execx"
	"sysward/internal/heal"
	"sysward/internal/logging"
	"sysward/internal/notify"
	"sysward/internal/telemetry"
	"sysward/internal/version"
)

const defaultConfigPath = "/etc/sysward/config.json"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the JSON configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("sysward " + version.String())
		return
	}

	logging.SetupBase()
	log.Infof("===== sysward %s starting =====", version.String())

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.FallbackRecord(fmt.Sprintf("configuration unusable: %v", err))
		log.Errorf("configuration unusable: %v", err)
		os.Exit(1)
	}

	if err := logging.Configure(cfg.LogLevel, cfg.LogFile); err != nil {
		logging.FallbackRecord(fmt.Sprintf("logging setup failed: %v", err))
		log.Errorf("logging setup failed: %v", err)
		os.Exit(1)
	}

	if os.Geteuid() != 0 {
		log.Warn("running without root, self-healing relies on passwordless sudo rules")
	}

	var hub *api.Hub
	var broadcaster agent.Broadcaster
	if cfg.ListenAddr != "" {
		hub = api.NewHub()
		go hub.Run()
		broadcaster = hub
	} else {
		log.Info("status API disabled by configuration")
	}

	sup := buildSupervisor(cfg, broadcaster)

	var srv *api.Server
	if hub != nil {
		srv = api.NewServer(cfg.ListenAddr, sup, hub)
		go func() {
			if err := srv.Start(); err != nil {
				log.Errorf("status API failed: %v", err)
			}
		}()
	}

	sup.Run(context.Background())

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnf("status API shutdown: %v", err)
		}
	}
	log.Infof("===== sysward stopped =====")
}

// buildSupervisor assembles the cycle loop from the validated config.
func buildSupervisor(cfg *config.Config, hub agent.Broadcaster) *agent.Supervisor {
	var channels []notify.Notifier
	if cfg.EmailAlertsEnabled {
		channels = append(channels, notify.NewEmail(cfg.SMTPHost, cfg.SMTPPort, cfg.EmailSender, cfg.EmailRecipient))
		log.Infof("email alerts enabled to %s", cfg.EmailRecipient)
	}
	if cfg.DiscordWebhookURL != "" {
		channels = append(channels, notify.NewDiscord(cfg.DiscordWebhookURL))
		log.Info("discord alerts enabled")
	}
	router := notify.NewRouter(cfg.AlertMinInterval(), channels...)

	runner := execx.NewRunner()
	collector := telemetry.NewCollector("/")
	engine := diagnose.NewEngine(cfg, router)
	orchestrator := heal.NewOrchestrator(cfg, runner)
	maintenance := heal.NewMaintenance(cfg.CPUPermitManUpdate, runner)

	return agent.NewSupervisor(cfg, collector, engine, orchestrator, maintenance, buildAdvisor(cfg), hub)
}

// buildAdvisor gates the Ollama advisor on backend reachability once at
// startup. An unreachable or model-less backend disables the advisor for the
// life of the process rather than failing every cycle.
func buildAdvisor(cfg *config.Config) advisor.Advisor {
	if !cfg.OllamaEnabled {
		return advisor.Nop{}
	}
	client := advisor.NewOllama(cfg.OllamaHost, cfg.OllamaModel)

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.OllamaInitTimeoutSec)*time.Second)
	defer cancel()

	if err := client.Ping(ctx); err != nil {
		cfg.DisableOllama(err.Error())
		return advisor.Nop{}
	}
	if err := client.EnsureModel(ctx); err != nil {
		cfg.DisableOllama(fmt.Sprintf("model %s unavailable: %v", cfg.OllamaModel, err))
		return advisor.Nop{}
	}
	log.Infof("advisor ready, ollama model %s at %s", cfg.OllamaModel, cfg.OllamaHost)
	return client
}
