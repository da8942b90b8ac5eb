package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Knowledge-graph names use a binary collation so that uniqueness and
// lookups are case-sensitive.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		username      VARCHAR(64)  NOT NULL,
		email         VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role          ENUM('user','therapist','admin') NOT NULL DEFAULT 'user',
		is_active     TINYINT(1)   NOT NULL DEFAULT 1,
		created_at    DATETIME     NOT NULL,
		last_login_at DATETIME     NULL,
		UNIQUE KEY uq_users_username (username),
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		user_id    BIGINT UNSIGNED NOT NULL,
		token_hash CHAR(64) NOT NULL,
		expires_at DATETIME NOT NULL,
		revoked_at DATETIME NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_refresh_hash (token_hash),
		KEY ix_refresh_user (user_id),
		CONSTRAINT fk_refresh_user FOREIGN KEY (user_id) REFERENCES users (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS therapist_applications (
		id                 BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		applicant_user_id  BIGINT UNSIGNED NOT NULL,
		full_name          VARCHAR(255) NOT NULL,
		email              VARCHAR(255) NOT NULL,
		specialty          VARCHAR(255) NOT NULL,
		license_number     VARCHAR(128) NOT NULL,
		certification      VARCHAR(255) NOT NULL,
		experience_years   INT NOT NULL,
		document_reference VARCHAR(512) NOT NULL DEFAULT '',
		status             ENUM('pending','approved','rejected') NOT NULL DEFAULT 'pending',
		promoted_role      VARCHAR(16) NOT NULL DEFAULT '',
		created_at         DATETIME NOT NULL,
		updated_at         DATETIME NOT NULL,
		UNIQUE KEY uq_application_applicant (applicant_user_id),
		KEY ix_application_status (status),
		CONSTRAINT fk_application_user FOREIGN KEY (applicant_user_id) REFERENCES users (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS disorders (
		name VARCHAR(191) COLLATE utf8mb4_bin NOT NULL PRIMARY KEY
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS symptoms (
		name VARCHAR(191) COLLATE utf8mb4_bin NOT NULL PRIMARY KEY
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS disorder_symptoms (
		disorder_name VARCHAR(191) COLLATE utf8mb4_bin NOT NULL,
		symptom_name  VARCHAR(191) COLLATE utf8mb4_bin NOT NULL,
		PRIMARY KEY (disorder_name, symptom_name),
		KEY ix_link_symptom (symptom_name),
		CONSTRAINT fk_link_disorder FOREIGN KEY (disorder_name) REFERENCES disorders (name) ON DELETE CASCADE,
		CONSTRAINT fk_link_symptom FOREIGN KEY (symptom_name) REFERENCES symptoms (name) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS treatment_plans (
		id                BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		patient_user_id   BIGINT UNSIGNED NOT NULL,
		therapist_user_id BIGINT UNSIGNED NOT NULL,
		disorder_name     VARCHAR(191) COLLATE utf8mb4_bin NOT NULL,
		plan_text         TEXT NOT NULL,
		duration_weeks    TINYINT UNSIGNED NOT NULL,
		status            ENUM('Active','Completed','Canceled') NOT NULL DEFAULT 'Active',
		created_at        DATETIME NOT NULL,
		updated_at        DATETIME NOT NULL,
		KEY ix_plan_patient (patient_user_id),
		KEY ix_plan_therapist (therapist_user_id),
		KEY ix_plan_disorder (disorder_name),
		CONSTRAINT fk_plan_patient FOREIGN KEY (patient_user_id) REFERENCES users (id),
		CONSTRAINT fk_plan_therapist FOREIGN KEY (therapist_user_id) REFERENCES users (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS problem_reports (
		id               BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		reporter_user_id BIGINT UNSIGNED NOT NULL,
		title            VARCHAR(255) NOT NULL,
		description      TEXT NOT NULL,
		category         ENUM('technical','content','suggestion','other') NOT NULL,
		status           ENUM('pending','in_progress','resolved','closed') NOT NULL DEFAULT 'pending',
		created_at       DATETIME NOT NULL,
		updated_at       DATETIME NOT NULL,
		KEY ix_report_reporter (reporter_user_id),
		KEY ix_report_status (status),
		CONSTRAINT fk_report_user FOREIGN KEY (reporter_user_id) REFERENCES users (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS reviews (
		id                BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		therapist_user_id BIGINT UNSIGNED NOT NULL,
		patient_user_id   BIGINT UNSIGNED NOT NULL,
		title             VARCHAR(255) NOT NULL,
		content           TEXT NOT NULL,
		disorder_name     VARCHAR(191) COLLATE utf8mb4_bin NOT NULL,
		specialty         VARCHAR(255) NOT NULL DEFAULT '',
		created_at        DATETIME NOT NULL,
		KEY ix_review_patient (patient_user_id),
		KEY ix_review_disorder (disorder_name),
		CONSTRAINT fk_review_therapist FOREIGN KEY (therapist_user_id) REFERENCES users (id),
		CONSTRAINT fk_review_patient FOREIGN KEY (patient_user_id) REFERENCES users (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates any missing tables. It is safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}
