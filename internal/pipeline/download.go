package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/timmy/vidqa/internal/docstore"
	"github.com/timmy/vidqa/internal/domain"
	"github.com/timmy/vidqa/internal/logger"
)

// download fetches the source video and creates the initial metadata
// document. When the stored video file already exists the fetch is skipped;
// the local copy is restored from storage if the work directory lost it.
func (p *Pipeline) download(ctx context.Context, videoID, url string) (string, error) {
	ctx = logger.SetStage(ctx, "download")

	localDir := filepath.Join(p.cfg.WorkDir, videoID)
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create work directory %s: %w", localDir, err)
	}
	localPath := filepath.Join(localDir, videoID+".mp4")

	fileKey := docstore.VideoFileKey(videoID)
	exists, err := p.store.Exists(ctx, fileKey)
	if err != nil {
		return "", fmt.Errorf("failed to check stored video: %w", err)
	}

	if exists {
		p.log(ctx).Info("Video file already stored, skipping download")
		if _, statErr := os.Stat(localPath); statErr != nil {
			if err := p.fetchObjectToFile(ctx, fileKey, localPath); err != nil {
				return "", fmt.Errorf("failed to restore local video copy: %w", err)
			}
		}
		if err := p.ensureInitialRecord(ctx, videoID, url, nil); err != nil {
			return "", err
		}
		return localPath, nil
	}

	result, err := p.downloader.Download(ctx, url, localPath)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", url, err)
	}
	if result.LocalPath != "" {
		localPath = result.LocalPath
	}

	if err := p.uploadFile(ctx, localPath, fileKey, "video/mp4"); err != nil {
		return "", fmt.Errorf("failed to store video file: %w", err)
	}
	p.log(ctx).Info("Video downloaded and stored")

	if err := p.ensureInitialRecord(ctx, videoID, url, result); err != nil {
		return "", err
	}
	return localPath, nil
}

// ensureInitialRecord creates the metadata document when absent. An
// existing document is left untouched so resumed runs keep their state.
func (p *Pipeline) ensureInitialRecord(ctx context.Context, videoID, url string, result *DownloadResult) error {
	_, err := p.docs.ReadVideo(ctx, videoID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("failed to read metadata document: %w", err)
	}

	rec := &domain.VideoRecord{
		VideoID:          videoID,
		SourceURL:        url,
		ProcessingStatus: domain.ProcessingStatusProcessing,
	}
	if result != nil {
		rec.UploaderName = result.UploaderName
		rec.LikeCount = result.LikeCount
	}
	if err := p.docs.WriteVideo(ctx, rec); err != nil {
		return fmt.Errorf("failed to create metadata document: %w", err)
	}
	p.log(ctx).Info("Created initial metadata document")
	return nil
}

func (p *Pipeline) uploadFile(ctx context.Context, localPath, key, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	return p.store.Upload(ctx, key, f, info.Size(), contentType)
}

func (p *Pipeline) fetchObjectToFile(ctx context.Context, key, localPath string) error {
	body, err := p.store.Download(ctx, key)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(f, body)
	return err
}
