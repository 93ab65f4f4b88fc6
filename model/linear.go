package model

import (
	"encoding/json"
	"os"
)

// LinearModel 实现了线性加权打分模型。
// 它是个性化排序最基础的形态：各路信号（相似度、时效、热度）线性组合。
//
// 预测原理：score = Bias + sum(Weight_i * Feature_i)
//
// 与 CTR 预估不同，这里不做 Sigmoid 变换：排序只需要分数可比较，
// 保留线性值便于排查各信号的贡献。
type LinearModel struct {
	Bias    float64            // 偏置项
	Weights map[string]float64 // 特征权重
}

// LoadLinearModel 从 JSON 文件加载权重。
func LoadLinearModel(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Bias    float64            `json:"bias"`
		Weights map[string]float64 `json:"weights"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return &LinearModel{Bias: raw.Bias, Weights: raw.Weights}, nil
}

func (m *LinearModel) Name() string { return "linear" }

func (m *LinearModel) Predict(features map[string]float64) (float64, error) {
	score := m.Bias
	for k, v := range features {
		if w, ok := m.Weights[k]; ok {
			score += w * v
		}
	}
	return score, nil
}
