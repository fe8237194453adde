package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"meshline/backend/internal/config"
	"meshline/backend/internal/storage"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	godotenv.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := gorm.Open(postgres.Open(config.DatabaseDSN()), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect database", zap.Error(err))
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr(),
		Password: config.RedisPassword(),
	})

	store := storage.NewService(db, rdb, log)

	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "ban":
		if len(os.Args) < 3 {
			fmt.Println("Usage: admin ban <user_id> [duration_in_hours]")
			os.Exit(1)
		}
		userID := parseUserID(os.Args[2])
		duration := config.DefaultBanDuration
		if len(os.Args) > 3 {
			hours, err := strconv.Atoi(os.Args[3])
			if err != nil || hours <= 0 {
				fmt.Println("Invalid duration. Please provide a positive integer of hours.")
				os.Exit(1)
			}
			duration = time.Duration(hours) * time.Hour
		}
		if err := store.BanUser(userID, duration); err != nil {
			log.Fatal("failed to ban user", zap.Error(err))
		}
		fmt.Printf("User %d banned for %s.\n", userID, duration)

	case "unban":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin unban <user_id>")
			os.Exit(1)
		}
		userID := parseUserID(os.Args[2])
		if err := store.UnbanUser(userID); err != nil {
			log.Fatal("failed to unban user", zap.Error(err))
		}
		fmt.Printf("User %d unbanned.\n", userID)

	case "audit":
		limit := 50
		if len(os.Args) > 2 {
			if parsed, err := strconv.Atoi(os.Args[2]); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		rows, err := store.RecentForbiddenAttempts(limit)
		if err != nil {
			log.Fatal("failed to load audit rows", zap.Error(err))
		}
		if len(rows) == 0 {
			fmt.Println("No forbidden attempts recorded.")
			return
		}
		for _, row := range rows {
			fmt.Printf("%s  sender=%d receiver=%d  %s\n",
				row.CreatedAt.Format(time.RFC3339), row.SenderID, row.ReceiverID, row.Reason)
		}

	default:
		usage()
	}
}

func parseUserID(raw string) uint {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		fmt.Println("Invalid user id.")
		os.Exit(1)
	}
	return uint(id)
}

func usage() {
	fmt.Println("Usage: admin <ban|unban|audit> [args]")
	os.Exit(1)
}
