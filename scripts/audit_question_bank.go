// 判断题题库巡检脚本
//
// 作答时若判断题缺少 "true"/"false" 选项，服务会自动补建并记录告警。
// 此脚本用于在上线前或批量导入题目后，提前找出这类题目交给出题人修正。
//
// 用法: go run scripts/audit_question_bank.go

package main

import (
	"context"
	"log"
	"os"

	"lms_assessment_backend/internal/config"
	"lms_assessment_backend/internal/repository"
	"lms_assessment_backend/pkg/database"
	"lms_assessment_backend/pkg/logger"

	"gopkg.in/yaml.v3"
)

type report struct {
	Total  int                         `yaml:"total"`
	Issues []repository.TrueFalseIssue `yaml:"issues"`
}

func main() {
	data, err := os.ReadFile("configs/config.yaml")
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	var cfg config.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	logger.InitLogger(&cfg)

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode, false)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	repo := repository.NewAssessmentRepository(db, nil, 0)
	issues, err := repo.AuditTrueFalseQuestions(context.Background())
	if err != nil {
		log.Fatalf("巡检失败: %v", err)
	}

	out, err := yaml.Marshal(report{Total: len(issues), Issues: issues})
	if err != nil {
		log.Fatalf("生成报告失败: %v", err)
	}
	os.Stdout.Write(out)

	if len(issues) > 0 {
		os.Exit(1)
	}
}
