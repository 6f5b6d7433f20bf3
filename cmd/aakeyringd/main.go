package main

import (
	"context"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/hashicorp/vault/api"

	"github.com/erc4337/aakeyring/internal/aa"
	"github.com/erc4337/aakeyring/internal/bundler"
	"github.com/erc4337/aakeyring/internal/config"
	"github.com/erc4337/aakeyring/internal/entropy"
	"github.com/erc4337/aakeyring/internal/handler"
	"github.com/erc4337/aakeyring/internal/keyring"
	"github.com/erc4337/aakeyring/internal/keystore"
	"github.com/erc4337/aakeyring/internal/log"
	"github.com/erc4337/aakeyring/internal/middleware"
	"github.com/erc4337/aakeyring/internal/router"
	"github.com/erc4337/aakeyring/internal/server"
	"github.com/erc4337/aakeyring/internal/state"
)

const receiptSweepInterval = 30 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Logger.Fatal().Err(err).Msg("load configuration")
	}
	log.Init(cfg.Log.Level, cfg.Log.JSON)

	ctx := context.Background()

	store, err := state.OpenBadger(cfg.State.DataDir)
	if err != nil {
		log.Logger.Fatal().Err(err).Str("dir", cfg.State.DataDir).Msg("open state store")
	}
	defer store.Close()

	source, err := buildEntropySource(cfg)
	if err != nil {
		log.Logger.Fatal().Err(err).Msg("build entropy source")
	}

	kr, err := keyring.New(ctx, store, keystore.New(source), nil, nil)
	if err != nil {
		log.Logger.Fatal().Err(err).Msg("build keyring")
	}

	// config overrides layer over the persisted bundler endpoint table
	urls := kr.BundlerURLs()
	for chainID, url := range cfg.Chain.BundlerURLs {
		urls[chainID] = url
	}

	var bundlerClient *bundler.Client
	if client, err := bundler.New(ctx, cfg.Chain.ID, urls); err != nil {
		log.Logger.Warn().Err(err).Str("chain", cfg.Chain.ID).Msg("bundler unavailable")
	} else {
		bundlerClient = client
		defer bundlerClient.Close()
	}

	node, err := ethclient.DialContext(ctx, cfg.Chain.NodeURL)
	if err != nil {
		log.Logger.Fatal().Err(err).Str("url", cfg.Chain.NodeURL).Msg("dial execution node")
	}
	defer node.Close()

	// the daemon exposes approve/reject as explicit RPCs, so user-operation
	// submission has no interactive dialog to lean on: default deny
	var svcBundler aa.Bundler
	if bundlerClient != nil {
		svcBundler = bundlerClient
	}
	svc := aa.NewService(kr, svcBundler, node, cfg.Chain.ID, aa.DenyPrompter{})

	var fwd router.Forwarder
	if bundlerClient != nil {
		fwd = bundlerClient
	}
	rt := router.New(router.NewPermissions(cfg.Permissions), kr, svc, fwd, cfg.Chain.ID)

	go sweepReceipts(ctx, svc)

	auth := middleware.NewAuthMiddleware(cfg.Auth.APISecret)
	mux := http.NewServeMux()
	mux.Handle("/health", handler.NewHealthHandler())
	mux.Handle("/rpc", auth.Wrap(handler.NewRPCHandler(rt)))

	srv := server.NewServer(mux, cfg.Server.Address, cfg.Server.Port)
	log.Logger.Info().Str("port", cfg.Server.Port).Str("chain", cfg.Chain.ID).Msg("listening")
	if err := srv.ListenAndServe(); err != nil {
		log.Logger.Fatal().Err(err).Msg("server stopped")
	}
}

func buildEntropySource(cfg config.Config) (entropy.Source, error) {
	switch cfg.Entropy.Type {
	case "vault":
		vaultConfig := api.DefaultConfig()
		if err := vaultConfig.ReadEnvironment(); err != nil {
			log.Logger.Warn().Err(err).Msg("read vault environment")
		}
		if cfg.Entropy.Vault.Address != "" {
			vaultConfig.Address = cfg.Entropy.Vault.Address
		}
		client, err := api.NewClient(vaultConfig)
		if err != nil {
			return nil, err
		}
		if cfg.Entropy.Vault.Token != "" {
			client.SetToken(cfg.Entropy.Vault.Token)
		}
		return entropy.NewVaultSource(client, cfg.Entropy.Vault.SecretPath), nil
	default:
		created, err := entropy.GenerateMnemonicFile(cfg.Entropy.Local.MnemonicFile)
		if err != nil {
			return nil, err
		}
		if created {
			log.Logger.Info().Str("file", cfg.Entropy.Local.MnemonicFile).Msg("generated mnemonic")
		}
		return entropy.NewLocalSource(cfg.Entropy.Local.MnemonicFile), nil
	}
}

// sweepReceipts periodically settles pending user operations that gained a
// receipt. Misses are benign; the next tick retries.
func sweepReceipts(ctx context.Context, svc *aa.Service) {
	ticker := time.NewTicker(receiptSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := svc.CheckUserOpReceipts(ctx); err != nil {
				log.AA.Warn().Err(err).Msg("receipt sweep")
			}
		}
	}
}
