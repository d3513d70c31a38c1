package model

import (
	"encoding/json"
	"fmt"
	"sort"
)

type AnswerKind string

const (
	AnswerKindFlat    AnswerKind = "flat"
	AnswerKindIndexed AnswerKind = "indexed"
)

// AnswerPayload 答案的存储格式：扁平的 questionId->answer，或 answersById 加题目展示顺序。
// 答案内容原样保存
type AnswerPayload struct {
	Kind          AnswerKind                 `json:"kind"`
	Answers       map[string]json.RawMessage `json:"answers,omitempty"`
	AnswersByID   map[string]json.RawMessage `json:"answersById,omitempty"`
	QuestionOrder []string                   `json:"questionOrder,omitempty"`
}

type OrderedAnswer struct {
	QuestionID string          `json:"questionId"`
	Answer     json.RawMessage `json:"answer,omitempty"`
	Answered   bool            `json:"answered"`
}

func FlatAnswers(answers map[string]json.RawMessage) AnswerPayload {
	return AnswerPayload{Kind: AnswerKindFlat, Answers: answers}
}

func IndexedAnswers(byID map[string]json.RawMessage, order []string) AnswerPayload {
	return AnswerPayload{Kind: AnswerKindIndexed, AnswersByID: byID, QuestionOrder: order}
}

// UnmarshalJSON 兼容没有 kind 字段的旧数据，旧数据一律按扁平格式读取
func (p *AnswerPayload) UnmarshalJSON(data []byte) error {
	type tagged AnswerPayload
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("answer payload: %w", err)
	}
	if raw == nil {
		*p = FlatAnswers(nil)
		return nil
	}
	if _, ok := raw["kind"]; !ok {
		*p = FlatAnswers(raw)
		return nil
	}

	var t tagged
	if err := json.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("answer payload: %w", err)
	}
	switch t.Kind {
	case AnswerKindFlat, AnswerKindIndexed:
	default:
		return fmt.Errorf("answer payload: unknown kind %q", t.Kind)
	}
	*p = AnswerPayload(t)
	return nil
}

// Len 已作答题目数
func (p AnswerPayload) Len() int {
	if p.Kind == AnswerKindIndexed {
		return len(p.AnswersByID)
	}
	return len(p.Answers)
}

// Ordered 按展示顺序列出答案。扁平格式没有顺序，按题目 id 排序；
// 索引格式中不在 questionOrder 里的题目按 id 排在最后
func (p AnswerPayload) Ordered() []OrderedAnswer {
	if p.Kind != AnswerKindIndexed {
		return sortedAnswers(p.Answers, nil)
	}

	out := make([]OrderedAnswer, 0, len(p.QuestionOrder))
	seen := make(map[string]bool, len(p.QuestionOrder))
	for _, id := range p.QuestionOrder {
		seen[id] = true
		ans, ok := p.AnswersByID[id]
		out = append(out, OrderedAnswer{QuestionID: id, Answer: ans, Answered: ok})
	}
	return append(out, sortedAnswers(p.AnswersByID, seen)...)
}

func sortedAnswers(m map[string]json.RawMessage, skip map[string]bool) []OrderedAnswer {
	keys := make([]string, 0, len(m))
	for k := range m {
		if !skip[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make([]OrderedAnswer, 0, len(keys))
	for _, k := range keys {
		out = append(out, OrderedAnswer{QuestionID: k, Answer: m[k], Answered: true})
	}
	return out
}
