package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	payrequest "payrequest_back"
	"payrequest_back/models"
	"payrequest_back/pkg/chainclient"
	"payrequest_back/pkg/handler"
	"payrequest_back/pkg/notifier"
	"payrequest_back/pkg/oracle"
	"payrequest_back/pkg/registry"
	"payrequest_back/pkg/repository"
	"payrequest_back/pkg/service"
)

func main() {
	logrus.SetFormatter(new(logrus.JSONFormatter))

	if err := godotenv.Load(); err != nil {
		logrus.Infof("no .env file loaded: %s", err)
	}
	if err := initConfig(); err != nil {
		logrus.Fatalf("failed to read config: %s", err.Error())
	}

	db, err := repository.NewPostgresDB(repository.Config{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: os.Getenv("DB_PASSWORD"),
		DBName:   viper.GetString("db.dbname"),
		SSLMode:  viper.GetString("db.sslmode"),
	})
	if err != nil {
		logrus.Fatalf("failed to connect to postgres: %s", err.Error())
	}
	logrus.Info("database connected")

	var descriptors []models.ChainDescriptor
	if err := viper.UnmarshalKey("chains", &descriptors); err != nil {
		logrus.Fatalf("failed to parse chain table: %s", err.Error())
	}
	chains, err := registry.New(descriptors)
	if err != nil {
		logrus.Fatalf("failed to build chain registry: %s", err.Error())
	}

	readers, err := buildReaders(chains, descriptors)
	if err != nil {
		logrus.Fatalf("failed to build chain clients: %s", err.Error())
	}

	prices := oracle.NewCoinGeckoClient(oracle.Config{
		BaseURL:  viper.GetString("oracle.base_url"),
		APIKey:   os.Getenv("COINGECKO_API_KEY"),
		CacheTTL: viper.GetDuration("oracle.cache_ttl"),
		Timeout:  viper.GetDuration("oracle.timeout"),
	})

	repos := repository.NewRepository(db)

	var mailer *notifier.Mailer
	if viper.GetBool("notifier.mail.enabled") {
		mailer = notifier.NewMailer(notifier.MailConfig{
			Provider:         viper.GetString("notifier.mail.provider"),
			From:             viper.GetString("notifier.mail.from"),
			To:               viper.GetString("notifier.mail.to"),
			SMTPHost:         viper.GetString("notifier.mail.smtp_host"),
			SMTPPort:         viper.GetInt("notifier.mail.smtp_port"),
			SMTPPassword:     os.Getenv("SMTP_PASSWORD"),
			MailjetAPIKey:    os.Getenv("MAILJET_API_KEY"),
			MailjetSecretKey: os.Getenv("MAILJET_SECRET_KEY"),
		})
	}
	dispatcher := notifier.NewDispatcher(repos.Webhooks, mailer, notifier.Config{
		QueueSize:       viper.GetInt("notifier.queue_size"),
		Workers:         viper.GetInt("notifier.workers"),
		MaxAttempts:     viper.GetInt("notifier.max_attempts"),
		RetryBackoff:    viper.GetDuration("notifier.retry_backoff"),
		DeliveryTimeout: viper.GetDuration("notifier.delivery_timeout"),
	})
	dispatcher.Start()

	services := service.NewService(service.Deps{
		Repos:    repos,
		Registry: chains,
		Readers:  readers,
		Prices:   prices,
		Events:   dispatcher,
		FeeConfig: service.FeeConfig{
			LoyaltyToken:     viper.GetString("fee.loyalty_token"),
			LoyaltyThreshold: viper.GetString("fee.loyalty_threshold"),
			LoyaltyFeeTotal:  viper.GetString("fee.loyalty_total"),
			PlatformWallet:   viper.GetString("fee.platform_wallet"),
			FallbackPrices:   viper.GetStringMapString("oracle.fallback_prices"),
			LookupTimeout:    viper.GetDuration("fee.lookup_timeout"),
		},
		VerifyCfg: service.VerifyConfig{
			MinConfirmations:    viper.GetUint64("verify.min_confirmations"),
			ReceiptPollAttempts: viper.GetInt("verify.receipt_poll_attempts"),
			ReceiptPollInterval: viper.GetDuration("verify.receipt_poll_interval"),
		},
		ExpiryDays: viper.GetInt("requests.default_expiry_days"),
	})
	handlers := handler.NewHandler(services)

	srv := new(payrequest.Server)
	go func() {
		port := os.Getenv("PORT")
		if port == "" {
			port = viper.GetString("server.port")
		}
		if err := srv.Run(port, handlers.InitRoute()); err != nil {
			logrus.Errorf("http server stopped: %s", err)
		}
	}()
	logrus.Info("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logrus.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("server shutdown: %s", err)
	}
	dispatcher.Stop()
	if err := db.Close(); err != nil {
		logrus.Errorf("db close: %s", err)
	}
}

func initConfig() error {
	viper.AddConfigPath("configs")
	viper.SetConfigName("config")
	return viper.ReadInConfig()
}

// buildReaders dials one read-only client per configured chain,
// selected by family.
func buildReaders(chains *registry.ChainRegistry, descriptors []models.ChainDescriptor) (map[string]chainclient.ChainReader, error) {
	readers := make(map[string]chainclient.ChainReader, len(descriptors))
	for _, d := range descriptors {
		id, err := chains.Resolve(d.ID)
		if err != nil {
			return nil, err
		}
		switch d.Family {
		case models.FamilyTron:
			readers[id] = chainclient.NewTronClient(d.RPCEndpoint, os.Getenv("TRONGRID_API_KEY"))
		default:
			client, err := chainclient.NewEVMClient(d.RPCEndpoint)
			if err != nil {
				return nil, err
			}
			readers[id] = client
		}
	}
	return readers, nil
}
