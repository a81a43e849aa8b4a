package agent

import (
	"context"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/liuxinyu/starlight/backend/internal/service/ai"
)

// TurnStream 是一次流式轮次。调用方循环 Recv 取回复片段，
// 结束后（EOF 或 Close）轮次结果经 Turn 获取。
//
// 客户端中途断开时，已产生的部分文本仍会按完整回复落盘，
// 保证记忆与图谱不丢失已经说出口的内容。
type TurnStream struct {
	svc     *Service
	state   *sessionState
	reader  *schema.StreamReader[*schema.Message]
	message string
	turn    *Turn

	fallback     bool
	fallbackSent bool

	buf      strings.Builder
	finalize sync.Once
	done     bool
}

// StreamTurn 开启一轮流式对话。流建立失败时仍返回可用的 TurnStream，
// 它会产出一条固定的道歉回复。
func (s *Service) StreamTurn(ctx context.Context, sessionID, message string) (*TurnStream, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}

	state := s.resolve(ctx, sessionID)
	state.mu.Lock()

	turn, req := s.prepareTurn(ctx, state, message)

	ts := &TurnStream{
		svc:     s,
		state:   state,
		message: message,
		turn:    turn,
	}

	reader, err := s.generator.Stream(ctx, req)
	if err != nil {
		log.Printf("[agent] stream setup failed session=%s: %v", sessionID, err)
		turn.Stages = append(turn.Stages, StageResult{Stage: StageGeneration, Status: StatusDegraded, Detail: err.Error()})
		ts.fallback = true
		return ts, nil
	}

	ts.reader = reader
	return ts, nil
}

// Recv 返回下一段回复文本。流结束时返回 io.EOF 并完成落盘。
func (ts *TurnStream) Recv() (string, error) {
	if ts.done {
		return "", io.EOF
	}

	if ts.fallback {
		if ts.fallbackSent {
			ts.complete("", "")
			return "", io.EOF
		}
		ts.fallbackSent = true
		ts.buf.WriteString(ai.FallbackReply)
		return ai.FallbackReply, nil
	}

	msg, err := ts.reader.Recv()
	if err == io.EOF {
		ts.complete(StatusOK, "")
		return "", io.EOF
	}
	if err != nil {
		log.Printf("[agent] stream recv failed session=%s: %v", ts.turn.SessionID, err)
		ts.complete(StatusDegraded, err.Error())
		return "", err
	}

	ts.buf.WriteString(msg.Content)
	return msg.Content, nil
}

// Close 提前终止流。已收到的部分文本会照常落盘。
func (ts *TurnStream) Close() {
	if ts.reader != nil {
		ts.reader.Close()
	}
	ts.complete(StatusDegraded, "stream closed early")
}

// Turn 返回轮次结果。流结束前调用时结果尚不完整。
func (ts *TurnStream) Turn() *Turn {
	return ts.turn
}

// complete 只执行一次：补全生成阶段状态、落盘并释放会话锁。
// 落盘用独立的 context，客户端断连不应打断知识更新。
func (ts *TurnStream) complete(status, detail string) {
	ts.finalize.Do(func() {
		defer ts.state.mu.Unlock()
		ts.done = true

		reply := ts.buf.String()
		ts.turn.Reply = reply
		if status != "" {
			ts.turn.Stages = append(ts.turn.Stages, StageResult{Stage: StageGeneration, Status: status, Detail: detail})
		}

		if reply == "" {
			return
		}
		ts.svc.commitTurn(context.Background(), ts.state, ts.message, reply, ts.turn)
	})
}
