package fedserver

import (
	"github.com/yndnr/memmesh-go/internal/infra/confloader"
	"github.com/yndnr/memmesh-go/internal/server/config"
	"github.com/yndnr/memmesh-go/internal/telemetry/logger"
)

// watchConfig hot-reloads the subset of settings that can change
// without a restart: log level and the gossip cadences. Everything
// else (addresses, storage engine, cluster key, node identity) still
// requires a restart, and a changed value is logged so the operator
// knows the file and the process disagree.
func (n *Node) watchConfig() error {
	watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(n.logger))
	if err != nil {
		return err
	}

	watcher.OnChange(func(path string) {
		n.applyReload(path)
	})

	if err := watcher.Watch(n.configFile); err != nil {
		watcher.Stop()
		return err
	}

	watcher.StartAsync()
	n.watcher = watcher
	n.logger.Info("watching config file", "path", n.configFile)
	return nil
}

func (n *Node) applyReload(path string) {
	fresh := config.Default()
	loader := confloader.NewLoader(confloader.WithConfigFile(path))
	if err := loader.Load(fresh); err != nil {
		n.logger.Error("config reload rejected", "path", path, "error", err)
		return
	}
	if err := config.Verify(fresh); err != nil {
		n.logger.Error("config reload rejected", "path", path, "error", err)
		return
	}

	if fresh.Log.Level != n.cfg.Log.Level {
		logger.SetLevel(fresh.Log.Level)
		n.cfg.Log.Level = fresh.Log.Level
		n.logger.Info("log level changed", "level", fresh.Log.Level)
	}

	if fresh.Federation.GossipInterval != n.cfg.Federation.GossipInterval ||
		fresh.Federation.AntiEntropyInterval != n.cfg.Federation.AntiEntropyInterval {
		n.mesh.SetIntervals(fresh.Federation.GossipInterval, fresh.Federation.AntiEntropyInterval)
		n.cfg.Federation.GossipInterval = fresh.Federation.GossipInterval
		n.cfg.Federation.AntiEntropyInterval = fresh.Federation.AntiEntropyInterval
		n.logger.Info("gossip cadence changed",
			"gossip_interval", fresh.Federation.GossipInterval,
			"anti_entropy_interval", fresh.Federation.AntiEntropyInterval)
	}

	if fresh.Server.RPCAddr != n.cfg.Server.RPCAddr {
		n.logger.Warn("server.rpc_addr changed in file; restart required to apply")
	}
	if fresh.Storage.Engine != n.cfg.Storage.Engine ||
		fresh.Storage.DataDir != n.cfg.Storage.DataDir {
		n.logger.Warn("storage settings changed in file; restart required to apply")
	}
	if fresh.Security.ClusterKey != n.cfg.Security.ClusterKey {
		n.logger.Warn("security.cluster_key changed in file; restart required to apply")
	}
}
