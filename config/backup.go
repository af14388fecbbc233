package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"bondrotor/logger"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultBackupDir 配置快照目录，和行情/运行数据分开存放
	DefaultBackupDir = "./data/config_history"
	// DefaultBackupKeep 保留的快照数量上限
	DefaultBackupKeep = 30

	backupPrefix = "bondrotor-config-"
	backupSuffix = ".yaml"
	backupStamp  = "20060102150405"
)

// BackupInfo 配置快照信息
type BackupInfo struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	FilePath    string    `json:"file_path"`
	Size        int64     `json:"size"`
	Description string    `json:"description"`
}

// BackupManager 在热更新前为配置文件留存快照，超量时淘汰最旧的
type BackupManager struct {
	backupDir  string
	maxBackups int
}

// NewBackupManager 创建快照管理器
func NewBackupManager() *BackupManager {
	return &BackupManager{
		backupDir:  DefaultBackupDir,
		maxBackups: DefaultBackupKeep,
	}
}

// CreateBackup 为当前配置文件创建一份快照
func (bm *BackupManager) CreateBackup(configPath string, description string) (*BackupInfo, error) {
	if err := os.MkdirAll(bm.backupDir, 0755); err != nil {
		return nil, fmt.Errorf("创建快照目录失败: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %v", err)
	}

	now := time.Now()
	name := backupPrefix + now.Format(backupStamp) + backupSuffix
	path := filepath.Join(bm.backupDir, name)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("写入快照失败: %v", err)
	}

	info := &BackupInfo{
		ID:          name,
		Timestamp:   now.Truncate(time.Second),
		FilePath:    path,
		Size:        int64(len(data)),
		Description: description,
	}

	// 淘汰失败不影响本次快照
	if err := bm.CleanOldBackups(); err != nil {
		logger.Warn("⚠️ 清理过期配置快照失败: %v", err)
	}

	return info, nil
}

// ListBackups 列出全部快照，最新的在前
func (bm *BackupManager) ListBackups() ([]*BackupInfo, error) {
	entries, err := os.ReadDir(bm.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*BackupInfo{}, nil
		}
		return nil, fmt.Errorf("读取快照目录失败: %v", err)
	}

	var backups []*BackupInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ts, err := parseBackupName(entry.Name())
		if err != nil {
			continue
		}
		fileInfo, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, &BackupInfo{
			ID:        entry.Name(),
			Timestamp: ts,
			FilePath:  filepath.Join(bm.backupDir, entry.Name()),
			Size:      fileInfo.Size(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// GetBackup 获取指定快照的信息
func (bm *BackupManager) GetBackup(backupID string) (*BackupInfo, error) {
	ts, err := parseBackupName(backupID)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(bm.backupDir, backupID)
	fileInfo, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("快照不存在: %v", err)
	}
	return &BackupInfo{
		ID:        backupID,
		Timestamp: ts,
		FilePath:  path,
		Size:      fileInfo.Size(),
	}, nil
}

// RestoreBackup 把指定快照写回目标配置文件
// 写回前先做一次完整的反序列化和校验，坏快照不允许覆盖现有配置
func (bm *BackupManager) RestoreBackup(backupID string, targetPath string) error {
	data, err := os.ReadFile(filepath.Join(bm.backupDir, backupID))
	if err != nil {
		return fmt.Errorf("读取快照失败: %v", err)
	}

	var restored Config
	if err := yaml.Unmarshal(data, &restored); err != nil {
		return fmt.Errorf("快照内容不是有效的配置: %v", err)
	}
	if err := restored.Validate(); err != nil {
		return fmt.Errorf("快照配置校验失败: %v", err)
	}

	if err := os.WriteFile(targetPath, data, 0644); err != nil {
		return fmt.Errorf("恢复配置文件失败: %v", err)
	}
	return nil
}

// DeleteBackup 删除指定快照
func (bm *BackupManager) DeleteBackup(backupID string) error {
	path := filepath.Join(bm.backupDir, backupID)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("快照不存在: %v", err)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("删除快照失败: %v", err)
	}
	return nil
}

// CleanOldBackups 按数量上限淘汰最旧的快照
func (bm *BackupManager) CleanOldBackups() error {
	backups, err := bm.ListBackups()
	if err != nil {
		return err
	}
	if len(backups) <= bm.maxBackups {
		return nil
	}

	for _, backup := range backups[bm.maxBackups:] {
		if err := bm.DeleteBackup(backup.ID); err != nil {
			logger.Warn("⚠️ 删除过期快照 %s 失败: %v", backup.ID, err)
		}
	}
	return nil
}

// parseBackupName 从快照文件名中解析出创建时间
// 文件名格式: bondrotor-config-20060102150405.yaml
func parseBackupName(name string) (time.Time, error) {
	if !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
		return time.Time{}, fmt.Errorf("不是配置快照文件: %s", name)
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, backupPrefix), backupSuffix)
	ts, err := time.ParseInLocation(backupStamp, stamp, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("快照时间戳无效: %s", stamp)
	}
	return ts, nil
}
