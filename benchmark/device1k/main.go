package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"liyu1981.xyz/hydro-telemetry-service/pkg/common"
	iotGrpc "liyu1981.xyz/hydro-telemetry-service/pkg/grpc"
)

var maxDevices int = 1000
var reportsPerDevice int = 3
var httpHostPort string = "127.0.0.1:1080"
var grpcHostPort string = "127.0.0.1:10801"

var grpcClient iotGrpc.TelemetryServiceClient

var rnd *rand.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
var rndMu sync.Mutex

var accepted, rejected, failed atomic.Int64

func main() {
	deviceIDs := make([]string, maxDevices)
	for i := range maxDevices {
		deviceIDs[i] = uuid.NewString()
	}
	fmt.Printf("generated %v device IDs\n", maxDevices)

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", httpHostPort))
	if err != nil {
		log.Fatal("Failed to connect to HTTP server:", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatal("HTTP server not available")
	}

	fmt.Printf("http server verified\n")

	conn, err := grpc.NewClient(grpcHostPort, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatal("Failed to connect to gRPC server:", err)
	}
	defer conn.Close()
	grpcClient = iotGrpc.NewTelemetryServiceClient(conn)

	fmt.Printf("gRPC client ready\n")

	startTime := time.Now()
	wg := sync.WaitGroup{}
	for i := range maxDevices {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range reportsPerDevice {
				postTelemetry(deviceIDs[i])
				time.Sleep(time.Duration(100+rndInt(1000)) * time.Millisecond)
			}
		}()
	}
	wg.Wait()
	usedTime := time.Since(startTime)

	total := maxDevices * reportsPerDevice
	fmt.Printf(
		"\rposted %v reports for %v devices: used time=%v seconds, throughput=%v reports/second\n",
		total, maxDevices, usedTime.Seconds(), float64(total)/usedTime.Seconds(),
	)
	fmt.Printf("accepted=%v rejected=%v failed=%v\n", accepted.Load(), rejected.Load(), failed.Load())

	printJobStats()
}

func rndInt(n int32) int32 {
	rndMu.Lock()
	defer rndMu.Unlock()
	return rnd.Int31n(n)
}

func rndFloat64(min, max float64, decimal int) float64 {
	rndMu.Lock()
	val := min + rnd.Float64()*(max-min)
	rndMu.Unlock()
	return common.RoundTo(val, decimal)
}

func flipCoin() bool {
	return rndInt(100000)%2 == 0
}

func genReport(deviceID string) map[string]any {
	return map[string]any{
		"device_id":     deviceID,
		"name":          "Station " + deviceID[:8],
		"device_status": "online",
		"timestamp":     time.Now().UTC().Format(time.RFC3339Nano),
		"last_battery":  rndFloat64(3.2, 4.2, 2),
		"last_signal":   rndFloat64(-110, -60, 0),
		"lat":           rndFloat64(-8, -6, 5),
		"long":          rndFloat64(106, 108, 5),
		"sensors": []any{
			map[string]any{
				"sensor_id":   "WL",
				"name":        "Water level",
				"unit":        "cm",
				"sensor_type": "water_level",
				"value":       rndFloat64(0, 300, 1),
				"elevation":   rndFloat64(10, 400, 2),
			},
			map[string]any{
				"sensor_id":   "RF",
				"name":        "Rainfall",
				"unit":        "mm",
				"sensor_type": "rainfall",
				"value":       rndFloat64(0, 50, 1),
			},
		},
	}
}

func postTelemetry(deviceID string) {
	report := genReport(deviceID)

	if flipCoin() {
		jsonData, _ := json.Marshal(report)
		resp, err := http.Post(fmt.Sprintf("http://%s/sensor/telemetry", httpHostPort), "application/json", bytes.NewBuffer(jsonData))
		if err != nil {
			failed.Add(1)
			fmt.Printf("\nerror: %v\n", err)
			return
		}
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusAccepted:
			accepted.Add(1)
		case http.StatusTooManyRequests, http.StatusBadRequest:
			rejected.Add(1)
		default:
			failed.Add(1)
		}
		return
	}

	req, err := structpb.NewStruct(report)
	if err != nil {
		failed.Add(1)
		fmt.Printf("\nerror: %v\n", err)
		return
	}
	if _, err := grpcClient.SubmitTelemetry(context.Background(), req); err != nil {
		rejected.Add(1)
		return
	}
	accepted.Add(1)
}

func printJobStats() {
	resp, err := http.Get(fmt.Sprintf("http://%s/jobs/stats", httpHostPort))
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var stats map[string]int64
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("queue after run: %v\n", stats)
}
