package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagepatch/internal/diag"
	"pagepatch/internal/patch"
	"pagepatch/pkg/contract"
)

// 内存桩件 ----------------------------------------------------

type memStore struct {
	mu      sync.Mutex
	docs    map[contract.DocID]string
	fail    map[contract.DocID]error
	delay   map[contract.DocID]time.Duration
	written map[contract.DocID]string
}

func newStore(docs map[contract.DocID]string) *memStore {
	return &memStore{docs: docs, fail: map[contract.DocID]error{}, delay: map[contract.DocID]time.Duration{}, written: map[contract.DocID]string{}}
}

func (m *memStore) Read(ctx context.Context, id contract.DocID) (contract.Document, error) {
	m.mu.Lock()
	d := m.delay[id]
	m.mu.Unlock()
	if d > 0 {
		select {
		case <-ctx.Done():
			return contract.Document{}, ctx.Err()
		case <-time.After(d):
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[id]; err != nil {
		return contract.Document{}, err
	}
	if w, ok := m.written[id]; ok {
		return contract.NewDocument(w), nil
	}
	text, ok := m.docs[id]
	if !ok {
		return contract.Document{}, fmt.Errorf("%w: %s", contract.ErrMissingDocument, id)
	}
	return contract.NewDocument(text), nil
}

func (m *memStore) Write(ctx context.Context, id contract.DocID, doc contract.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written[id] = doc.Text()
	return nil
}

type failWriter struct{}

func (failWriter) Write(ctx context.Context, id contract.DocID, doc contract.Document) error {
	return fmt.Errorf("%w: %s: disk full", contract.ErrUnreadable, id)
}

const profileSrc = "import React from 'react';\n\nconst Profile = () => {\n  return <div/>;\n};"

func studentTask(doc string) contract.PageTask {
	return contract.PageTask{Document: contract.DocID(doc), ServiceIdentifier: "studentService", MethodName: "getProfile"}
}

func quietLogger() *diag.Logger { return diag.NewWriterLogger("t", "error", io.Discard) }

// 端到端：Profile 页首次更新，对输出再次执行为 skipped。
func TestRunProfileThenSkipped(t *testing.T) {
	st := newStore(map[contract.DocID]string{"Profile.jsx": profileSrc})
	set := Settings{Tasks: []contract.PageTask{studentTask("Profile.jsx")}, InjectState: true}

	sum, err := Run(context.Background(), Components{Reader: st, Writer: st}, set, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Updated)
	assert.Equal(t, 1, sum.Total)
	require.Len(t, sum.Results, 1)
	r := sum.Results[0]
	assert.Equal(t, StatusUpdated, r.Status)
	assert.Equal(t, contract.Changed, r.State)
	assert.True(t, r.Written)

	out := st.written["Profile.jsx"]
	lines := strings.Split(out, "\n")
	assert.Equal(t, patch.ImportLines("studentService", "../services/studentService"), lines[:5])
	assert.NotContains(t, out, "import React from 'react';")
	assert.Contains(t, out, "const Profile = () => {\n  const toast = useToast();")
	assert.Contains(t, out, patch.PlaceholderCall)

	// 再次执行：读取到已写回的输出
	sum, err = Run(context.Background(), Components{Reader: st, Writer: st}, set, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Updated)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, out, st.written["Profile.jsx"])
}

func TestRunDryRunDoesNotWrite(t *testing.T) {
	st := newStore(map[contract.DocID]string{"Profile.jsx": profileSrc})
	set := Settings{Tasks: []contract.PageTask{studentTask("Profile.jsx")}, DryRun: true}

	// dry-run 下不要求 Writer
	sum, err := Run(context.Background(), Components{Reader: st}, set, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Updated)
	assert.False(t, sum.Results[0].Written)
	assert.Empty(t, st.written)
	// 结果仍携带改写后的文档
	assert.Contains(t, sum.Results[0].Doc.Text(), "import { studentService } from '../services/studentService';")
	// 未启用状态注入
	assert.NotContains(t, sum.Results[0].Doc.Text(), "const toast = useToast();")
}

func TestRunMixedStatuses(t *testing.T) {
	st := newStore(map[contract.DocID]string{
		"Profile.jsx":   profileSrc,
		"Notices.jsx":   "const Notices = () => {\n};",
		"Timetable.jsx": "import { useState } from 'react';\nimport { studentService } from '../services/studentService';",
		"Broken.jsx":    profileSrc,
	})
	st.fail["Broken.jsx"] = fmt.Errorf("%w: Broken.jsx", contract.ErrEncoding)
	tasks := []contract.PageTask{
		studentTask("Profile.jsx"),
		studentTask("Notices.jsx"),
		studentTask("Timetable.jsx"),
		studentTask("Hostel.jsx"),
		studentTask("Broken.jsx"),
	}
	sum, err := Run(context.Background(), Components{Reader: st, Writer: st}, Settings{Tasks: tasks}, quietLogger())
	require.NoError(t, err)

	got := make([]Status, 0, len(sum.Results))
	for _, r := range sum.Results {
		got = append(got, r.Status)
	}
	assert.Equal(t, []Status{StatusUpdated, StatusUnchanged, StatusSkipped, StatusMissing, StatusFailed}, got)
	assert.Equal(t, contract.ReasonNoImportFound, sum.Results[1].Reason)
	assert.ErrorIs(t, sum.Results[3].Err, contract.ErrMissingDocument)
	assert.ErrorIs(t, sum.Results[4].Err, contract.ErrEncoding)
	assert.Equal(t, diag.Tally{Updated: 1, Skipped: 1, Unchanged: 1, Missing: 1, Failed: 1, Total: 5}, sum.Tally())
	// 仅 updated 写回
	assert.Len(t, st.written, 1)
}

// 无 import 的页面仍注入状态片段并写回；状态保持 unchanged，重复运行不叠加。
func TestRunNoImportStillInjectsState(t *testing.T) {
	st := newStore(map[contract.DocID]string{"Notices.jsx": "const Notices = () => {\n  return <ul/>;\n};"})
	set := Settings{Tasks: []contract.PageTask{studentTask("Notices.jsx")}, InjectState: true}
	var term bytes.Buffer
	sum, err := Run(context.Background(), Components{Reader: st, Writer: st, Terminal: diag.NewTerminal(&term, true)}, set, quietLogger())
	require.NoError(t, err)
	r := sum.Results[0]
	assert.Equal(t, StatusUnchanged, r.Status)
	assert.Equal(t, contract.ReasonNoImportFound, r.Reason)
	assert.Equal(t, contract.Changed, r.State)
	assert.True(t, r.Written)
	assert.Equal(t, 1, sum.Unchanged)
	out := st.written["Notices.jsx"]
	assert.True(t, strings.HasPrefix(out, "const Notices = () => {\n  const toast = useToast();"))
	assert.Contains(t, term.String(), "[unchanged] Notices.jsx | no_import | state changed | written")

	again, err := Run(context.Background(), Components{Reader: st, Writer: st}, set, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, contract.Unchanged, again.Results[0].State)
	assert.False(t, again.Results[0].Written)
	assert.Equal(t, 1, strings.Count(st.written["Notices.jsx"], "const toast = useToast();"))
}

func TestTransformNoImportInjectState(t *testing.T) {
	doc := contract.NewDocument("const Profile = () => {\n};")
	r := Transform(doc, studentTask("Profile.jsx"), Settings{InjectState: true})
	assert.Equal(t, StatusUnchanged, r.Status)
	assert.Equal(t, contract.Changed, r.State)
	assert.Contains(t, r.Doc.Text(), "const toast = useToast();")

	// 未启用注入时原样返回
	r = Transform(doc, studentTask("Profile.jsx"), Settings{})
	assert.Equal(t, contract.Unchanged, r.State)
	assert.Equal(t, doc.Text(), r.Doc.Text())
}

func TestRunComponentNotFoundStillUpdated(t *testing.T) {
	src := "import React from 'react';\n\nfunction Profile() {\n  return <div/>;\n}"
	st := newStore(map[contract.DocID]string{"Profile.jsx": src})
	set := Settings{Tasks: []contract.PageTask{studentTask("Profile.jsx")}, InjectState: true, DryRun: true}
	sum, err := Run(context.Background(), Components{Reader: st}, set, quietLogger())
	require.NoError(t, err)
	r := sum.Results[0]
	assert.Equal(t, StatusUpdated, r.Status)
	assert.Equal(t, contract.Unchanged, r.State)
	assert.Equal(t, contract.ReasonComponentNotFound, r.Reason)
}

func TestRunBindService(t *testing.T) {
	st := newStore(map[contract.DocID]string{"pages/Profile.jsx": profileSrc})
	set := Settings{Tasks: []contract.PageTask{studentTask("pages/Profile.jsx")}, InjectState: true, BindService: true, DryRun: true}
	sum, err := Run(context.Background(), Components{Reader: st}, set, quietLogger())
	require.NoError(t, err)
	out := sum.Results[0].Doc.Text()
	assert.Contains(t, out, "const result = await studentService.getProfile();")
	assert.NotContains(t, out, patch.PlaceholderCall)
}

func TestRunBindServiceInvalidMethod(t *testing.T) {
	st := newStore(map[contract.DocID]string{"Profile.jsx": profileSrc})
	task := studentTask("Profile.jsx")
	task.MethodName = "get-profile"
	set := Settings{Tasks: []contract.PageTask{task}, InjectState: true, BindService: true, DryRun: true}
	sum, err := Run(context.Background(), Components{Reader: st}, set, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, sum.Results[0].Status)
	assert.ErrorIs(t, sum.Results[0].Err, contract.ErrPatternInvalid)
	assert.Equal(t, 1, sum.Failed)
}

func TestRunWriterFailure(t *testing.T) {
	st := newStore(map[contract.DocID]string{"Profile.jsx": profileSrc})
	sum, err := Run(context.Background(), Components{Reader: st, Writer: failWriter{}}, Settings{Tasks: []contract.PageTask{studentTask("Profile.jsx")}}, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, sum.Results[0].Status)
	assert.False(t, sum.Results[0].Written)
	assert.ErrorIs(t, sum.Results[0].Err, contract.ErrUnreadable)
}

func TestImportPathTemplate(t *testing.T) {
	set := Settings{}
	assert.Equal(t, "../services/studentService", set.importPath(studentTask("a.jsx")))
	set.ImportPath = "@/api/{service}"
	assert.Equal(t, "@/api/studentService", set.importPath(studentTask("a.jsx")))
	task := studentTask("a.jsx")
	task.ImportPath = "../lib/student"
	assert.Equal(t, "../lib/student", set.importPath(task))
}

// 并发时结果与终端输出仍按任务表顺序。
func TestRunConcurrentKeepsOrder(t *testing.T) {
	docs := map[contract.DocID]string{}
	var tasks []contract.PageTask
	for i := 0; i < 8; i++ {
		id := contract.DocID(fmt.Sprintf("Page%d.jsx", i))
		docs[id] = fmt.Sprintf("import React from 'react';\nconst Page%d = () => {\n};", i)
		tasks = append(tasks, studentTask(string(id)))
	}
	st := newStore(docs)
	// 越靠前越慢
	for i, tk := range tasks {
		st.delay[tk.Document] = time.Duration(len(tasks)-i) * 5 * time.Millisecond
	}
	var buf bytes.Buffer
	term := diag.NewTerminal(&buf, true)
	sum, err := Run(context.Background(), Components{Reader: st, Writer: st, Terminal: term}, Settings{Tasks: tasks, Concurrency: 4}, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 8, sum.Updated)
	for i, r := range sum.Results {
		assert.Equal(t, tasks[i].Document, r.Task.Document)
	}

	var taskLines []string
	for _, ln := range strings.Split(buf.String(), "\n") {
		if strings.HasPrefix(ln, "[updated]") {
			taskLines = append(taskLines, ln)
		}
	}
	require.Len(t, taskLines, 8)
	for i, ln := range taskLines {
		assert.Contains(t, ln, fmt.Sprintf("Page%d.jsx", i))
		assert.Contains(t, ln, "written")
	}
	assert.Contains(t, buf.String(), "[ok] 汇总 | 更新 8 |")
}

func TestRunCanceled(t *testing.T) {
	st := newStore(map[contract.DocID]string{"A.jsx": profileSrc, "B.jsx": profileSrc})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := Run(ctx, Components{Reader: st, Writer: st}, Settings{Tasks: []contract.PageTask{studentTask("A.jsx"), studentTask("B.jsx")}}, quietLogger())
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 2, sum.Failed)
	assert.Empty(t, st.written)
}

func TestRunSanity(t *testing.T) {
	st := newStore(nil)
	tasks := []contract.PageTask{studentTask("a.jsx")}
	cases := []struct {
		name string
		comp Components
		set  Settings
	}{
		{"no reader", Components{Writer: st}, Settings{Tasks: tasks}},
		{"no writer", Components{Reader: st}, Settings{Tasks: tasks}},
		{"bind without inject", Components{Reader: st}, Settings{Tasks: tasks, DryRun: true, BindService: true}},
		{"empty tasks", Components{Reader: st, Writer: st}, Settings{}},
	}
	for _, c := range cases {
		_, err := Run(context.Background(), c.comp, c.set, nil)
		assert.Error(t, err, c.name)
	}
}

func TestRunLogsSummary(t *testing.T) {
	st := newStore(map[contract.DocID]string{"Profile.jsx": profileSrc})
	var buf bytes.Buffer
	lg := diag.NewWriterLogger("cid", "info", &buf)
	_, err := Run(context.Background(), Components{Reader: st}, Settings{Tasks: []contract.PageTask{studentTask("Profile.jsx"), studentTask("Gone.jsx")}, DryRun: true}, lg)
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, `"msg":"summary"`)
	assert.Contains(t, out, `"updated":"1"`)
	assert.Contains(t, out, `"missing":"1"`)
	assert.Contains(t, out, `"stage":"skip"`)
	assert.Contains(t, out, `"doc_id":"Gone.jsx"`)
}
