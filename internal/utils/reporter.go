package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/GrokExporter/internal/models"
	"github.com/schollz/progressbar/v3"
)

// ExportedFileInfo 单个会话的导出结果
type ExportedFileInfo struct {
	ConversationID string    `json:"conversationId"`
	FilePath       string    `json:"filePath"`
	MessageCount   int       `json:"messageCount"`
	ExportedAt     time.Time `json:"exportedAt"`
}

// ExportReport 一次导出任务的汇总报告
type ExportReport struct {
	RunID         string             `json:"runId"`
	Format        string             `json:"format"`
	StartTime     time.Time          `json:"startTime"`
	EndTime       time.Time          `json:"endTime"`
	Stats         models.ExportStats `json:"stats"`
	ExportedFiles []ExportedFileInfo `json:"exportedFiles"`
	FailedIDs     []string           `json:"failedIds"`
	OutputDir     string             `json:"outputDir"`
}

// Reporter 报告生成器
type Reporter struct {
	outputDir string
}

// NewReporter 创建报告生成器
func NewReporter(outputDir string) *Reporter {
	return &Reporter{outputDir: outputDir}
}

// GenerateReport 生成导出报告并写入reports目录
func (r *Reporter) GenerateReport(report ExportReport) error {
	reportsDir := filepath.Join(r.outputDir, "reports")
	if err := os.MkdirAll(reportsDir, 0755); err != nil {
		return fmt.Errorf("创建报告目录失败: %w", err)
	}

	report.OutputDir = r.outputDir

	if err := r.saveJSONReport(reportsDir, "export_report.json", report); err != nil {
		return err
	}
	if err := r.saveJSONReport(reportsDir, "exported_files.json", report.ExportedFiles); err != nil {
		return err
	}
	if len(report.FailedIDs) > 0 {
		if err := r.saveJSONReport(reportsDir, "failed_ids.json", report.FailedIDs); err != nil {
			return err
		}
	}

	Infof("✅ 报告已生成: %s", reportsDir)
	return nil
}

// saveJSONReport 保存JSON报告
func (r *Reporter) saveJSONReport(dir string, filename string, data interface{}) error {
	path := filepath.Join(dir, filename)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("写入报告文件失败: %w", err)
	}

	Debugf("保存报告: %s", path)
	return nil
}

// NewProgressBar 创建进度条
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
