package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"aquaflow.game/internal/persistence/r2s3"
)

// openBackup configures offsite copies of saves from AF_BACKUP_* variables. It returns
// nil when no endpoint is set.
func openBackup(serverID string, logger *log.Logger) (*r2s3.Backup, error) {
	endpoint := strings.TrimSpace(os.Getenv("AF_BACKUP_ENDPOINT"))
	if endpoint == "" {
		return nil, nil
	}
	client, err := r2s3.New(r2s3.Config{
		Endpoint:        endpoint,
		Bucket:          os.Getenv("AF_BACKUP_BUCKET"),
		AccessKeyID:     os.Getenv("AF_BACKUP_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AF_BACKUP_SECRET_ACCESS_KEY"),
		Region:          os.Getenv("AF_BACKUP_REGION"),
	})
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimSpace(os.Getenv("AF_BACKUP_PREFIX"))
	if prefix == "" {
		prefix = "aquaflow/" + serverID
	}
	logger.Printf("save backup: bucket=%s prefix=%s", os.Getenv("AF_BACKUP_BUCKET"), prefix)
	return r2s3.NewBackup(client, prefix, log.New(logger.Writer(), "[backup] ", logger.Flags())), nil
}

func writeBackupMetrics(w io.Writer, b *r2s3.Backup) {
	if b == nil {
		return
	}
	s := b.Stats()
	fmt.Fprintf(w, "# HELP aquaflow_backup_uploads_total Save uploads to object storage.\n")
	fmt.Fprintf(w, "# TYPE aquaflow_backup_uploads_total counter\n")
	fmt.Fprintf(w, "aquaflow_backup_uploads_total{result=%q} %d\n", "ok", s.Uploaded)
	fmt.Fprintf(w, "aquaflow_backup_uploads_total{result=%q} %d\n", "fail", s.Failed)
	fmt.Fprintf(w, "# HELP aquaflow_backup_replaced_total Saves superseded before upload.\n")
	fmt.Fprintf(w, "# TYPE aquaflow_backup_replaced_total counter\n")
	fmt.Fprintf(w, "aquaflow_backup_replaced_total %d\n", s.Replaced)
	fmt.Fprintf(w, "# HELP aquaflow_backup_last_upload_unix Time of the last successful upload.\n")
	fmt.Fprintf(w, "# TYPE aquaflow_backup_last_upload_unix gauge\n")
	fmt.Fprintf(w, "aquaflow_backup_last_upload_unix %d\n", s.LastUploadUnix)
}
