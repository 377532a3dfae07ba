// Command queuewatch is a console desk/display surface: it keeps one queue
// in sync over the push channel, prints every change, and accepts desk
// commands on stdin.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"antrian-klinik/internal/client"
	"antrian-klinik/internal/config"
	"antrian-klinik/internal/models"

	"go.uber.org/zap"
)

func main() {
	config.LoadEnv()

	server := flag.String("server", config.GetEnv("QUEUE_SERVER", "http://localhost:8080"), "base URL server antrian")
	token := flag.String("token", os.Getenv("QUEUE_TOKEN"), "JWT untuk API dan websocket")
	specialist := flag.String("specialist", "", "id dokter spesialis")
	day := flag.String("day", time.Now().Format(models.DayLayout), "tanggal antrian (YYYY-MM-DD)")
	department := flag.String("department", "", "poli")
	readOnly := flag.Bool("readonly", false, "hanya tampilkan, abaikan perintah")
	flag.Parse()

	key := models.QueueKey{SpecialistID: *specialist, Day: *day, Department: *department}
	if err := key.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "key tidak valid:", err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(config.GetEnv("LOG_LEVEL", "warn"), "console", "queuewatch")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := client.NewRESTClient(*server, *token, 10*time.Second, logger)
	wsURL := "ws" + strings.TrimPrefix(*server, "http") + "/ws/queue"

	session := client.NewSession(client.NewWSDialer(wsURL, *token), api, client.SessionOptions{
		Logger: logger,
		Reconciler: client.ReconcilerOptions{
			OnChange: render,
			OnNotice: func(n client.Notice) {
				fmt.Printf("! %s ditolak (%s): %s\n", n.Op, n.Code, n.Message)
			},
		},
		OnStatus: func(connected bool) {
			if connected {
				fmt.Println("* tersambung")
			} else {
				fmt.Println("* terputus, mencoba lagi...")
			}
		},
	})
	rec := session.Watch(key)

	if !*readOnly {
		go readCommands(ctx, rec, logger)
	}

	if err := session.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("session berhenti", zap.Error(err))
		os.Exit(1)
	}
}

func render(snap models.Snapshot) {
	intake := "buka"
	if !snap.IntakeOpen {
		intake = "tutup"
	}
	fmt.Printf("\n== %s  v%d  pendaftaran online: %s\n", snap.Key, snap.Version, intake)
	for _, e := range snap.Entries {
		if e.Status.Terminal() {
			continue
		}
		number := "--"
		if e.Number > 0 {
			number = fmt.Sprintf("%02d", e.Number)
		}
		fmt.Printf("%3d. [%s] %-24s %-10s %s  %s\n", e.Position, number, e.PatientRef.Name, e.Status, e.Source, e.ID)
	}
}

const usage = `perintah: add <nama> | next | move <id> <posisi> | status <id> <status> | intake on|off`

var errUsage = errors.New(usage)

func readCommands(ctx context.Context, rec *client.Reconciler, logger *zap.Logger) {
	fmt.Println(usage)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		op, err := parseCommand(scanner.Text())
		if err != nil {
			fmt.Println(err)
			continue
		}
		if op == nil {
			continue
		}
		if _, err := rec.Do(ctx, op); err != nil {
			logger.Debug("operasi gagal", zap.Error(err))
			fmt.Println("x", err)
		}
	}
}

func parseCommand(line string) (client.Operation, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}

	switch fields[0] {
	case "add":
		if len(fields) < 2 {
			return nil, errUsage
		}
		return client.NewEnqueue(models.EntryDraft{
			PatientRef: models.PatientRef{Name: strings.Join(fields[1:], " ")},
			Source:     models.SourceDesk,
		}), nil
	case "next":
		return &client.CallNextOp{}, nil
	case "move":
		if len(fields) != 3 {
			return nil, errUsage
		}
		pos, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, errors.New("posisi harus angka")
		}
		return &client.MoveOp{EntryID: fields[1], Target: pos}, nil
	case "status":
		if len(fields) != 3 {
			return nil, errUsage
		}
		return &client.MarkStatusOp{EntryID: fields[1], Status: models.Status(fields[2])}, nil
	case "intake":
		if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
			return nil, errUsage
		}
		return &client.ToggleIntakeOp{Open: fields[1] == "on"}, nil
	}
	return nil, errUsage
}
