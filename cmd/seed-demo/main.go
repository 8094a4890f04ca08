package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/seed"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// pgWriter combines the account and exam repositories into a seed.Writer.
type pgWriter struct {
	*repository.AccountRepository
	*repository.ExamRepository
}

func main() {
	opts := seed.DefaultOptions
	flag.IntVar(&opts.Students, "students", 50, "Number of demo students")
	flag.IntVar(&opts.DurationMinutes, "duration", opts.DurationMinutes, "Exam duration in minutes")
	flag.StringVar(&opts.AdminEmail, "admin-email", opts.AdminEmail, "Admin login email")
	flag.StringVar(&opts.AdminPassword, "admin-password", opts.AdminPassword, "Admin password")
	flag.StringVar(&opts.StudentPassword, "student-password", opts.StudentPassword, "Password shared by all demo students")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	w := pgWriter{
		AccountRepository: repository.NewAccountRepository(pool),
		ExamRepository:    repository.NewExamRepository(pool),
	}
	hasher := service.NewAuthService(cfg, nil)

	fmt.Printf("=== Seeding demo exam with %d students ===\n", opts.Students)

	start := time.Now()
	res, err := seed.Run(ctx, w, hasher.HashPassword, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("Seeding failed")
	}

	fmt.Printf("Exam ID: %s\n", res.ExamID)
	fmt.Printf("Admin:   %s / %s\n", res.AdminEmail, opts.AdminPassword)
	for _, email := range res.StudentEmails {
		fmt.Printf("Student: %s / %s\n", email, opts.StudentPassword)
	}
	fmt.Printf("Done in %s\n", time.Since(start).Round(time.Millisecond))
}
