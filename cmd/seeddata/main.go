// Command seeddata writes synthetic swap logs into the parquet root so the
// ETL and dashboard can be exercised without production data.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"dexflow/config"
	"dexflow/internal/sampledata"
	"dexflow/logger"
)

var dexPool = []string{"Raydium", "Orca", "Phoenix", "Meteora", "Lifinity"}

func main() {
	log := logger.GetLogger()

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	days := flag.Int("days", 3, "Number of past days to seed")
	ordersPerHour := flag.Int("orders", 5, "Orders per seeded hour")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	today := time.Now().UTC().Truncate(24 * time.Hour)

	files := 0
	for _, chainID := range cfg.Chains {
		for d := *days; d >= 1; d-- {
			date := today.AddDate(0, 0, -d).Format("2006-01-02")
			for _, hour := range []int{2, 9, 14, 21} {
				records := make([]sampledata.SwapRecord, 0, *ordersPerHour)
				for i := 0; i < *ordersPerHour; i++ {
					records = append(records, randomOrder(rng, chainID, date, hour, i))
				}
				if _, err := sampledata.WriteHour(cfg.Data.ParquetRoot, chainID, date, hour, records); err != nil {
					log.WithError(err).Error("Failed to write sample data")
					os.Exit(1)
				}
				files++
			}
		}
	}

	log.WithFields(logger.Fields{
		"files":  files,
		"chains": len(cfg.Chains),
		"days":   *days,
		"root":   cfg.Data.ParquetRoot,
	}).Info("sample data written")
}

func randomOrder(rng *rand.Rand, chainID, date string, hour, seq int) sampledata.SwapRecord {
	legs := []sampledata.DexLeg{}
	remaining := 100
	splits := 1 + rng.Intn(3)
	for i := 0; i < splits; i++ {
		weight := remaining
		if i < splits-1 {
			weight = 1 + rng.Intn(remaining-(splits-i-1))
		}
		remaining -= weight
		legs = append(legs, sampledata.DexLeg{
			Dex:    dexPool[rng.Intn(len(dexPool))],
			Weight: weight,
		})
	}

	return sampledata.SwapRecord{
		OrderID:     fmt.Sprintf("%s-%s-%02d-%d", chainID, date, hour, seq),
		InputToken:  "So11111111111111111111111111111111111111112",
		OutputToken: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		Request:     sampledata.SwapRequest(sampledata.SingleRoute(legs...)),
	}
}
