package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/atelier-lab/archmentor/internal/agents"
	"github.com/atelier-lab/archmentor/internal/api"
	"github.com/atelier-lab/archmentor/internal/config"
	"github.com/atelier-lab/archmentor/internal/imagegen"
	"github.com/atelier-lab/archmentor/internal/mode"
	"github.com/atelier-lab/archmentor/internal/phase"
	"github.com/atelier-lab/archmentor/internal/session"
	"github.com/atelier-lab/archmentor/internal/tasks"
	"github.com/atelier-lab/archmentor/internal/telemetry"
	"github.com/atelier-lab/archmentor/internal/util"
	"github.com/atelier-lab/archmentor/internal/vision"
	"github.com/atelier-lab/archmentor/pkg/models"
)

// VisionAnalyzer analyzes uploaded sketches; nil disables the feature
type VisionAnalyzer interface {
	AnalyzeImage(ctx context.Context, path, projectContext string) (*vision.Analysis, error)
}

// ImageGenerator produces phase-transition imagery; nil disables the feature
type ImageGenerator interface {
	Generate(ctx context.Context, p models.Phase, prompt string) (*models.GeneratedImage, error)
	Download(ctx context.Context, img *models.GeneratedImage, sessionDir string) error
}

// Orchestrator owns the turn pipeline: routing, grading, task triggers,
// agent dispatch, and all session state mutation. Agents stay side-effect
// free; every state change funnels through here.
type Orchestrator struct {
	cfg       *config.Config
	store     *session.Store
	router    *Router
	engine    *phase.Engine
	taskMgr   *tasks.Manager
	analysis  *agents.AnalysisAgent
	socratic  *agents.SocraticAgent
	expert    *agents.ExpertAgent
	cognitive *agents.CognitiveAgent
	completer api.Completer
	visioner  VisionAnalyzer
	imageGen  ImageGenerator
	recorder  *telemetry.Recorder
	metrics   *telemetry.Collector
	logger    *slog.Logger
}

// Deps bundles the orchestrator's collaborators
type Deps struct {
	Config    *config.Config
	Store     *session.Store
	Router    *Router
	Engine    *phase.Engine
	TaskMgr   *tasks.Manager
	Analysis  *agents.AnalysisAgent
	Socratic  *agents.SocraticAgent
	Expert    *agents.ExpertAgent
	Cognitive *agents.CognitiveAgent
	Completer api.Completer
	Vision    VisionAnalyzer
	ImageGen  ImageGenerator
	Recorder  *telemetry.Recorder
	Metrics   *telemetry.Collector
	Logger    *slog.Logger
}

// NewOrchestrator wires the turn pipeline
func NewOrchestrator(d Deps) *Orchestrator {
	return &Orchestrator{
		cfg:       d.Config,
		store:     d.Store,
		router:    d.Router,
		engine:    d.Engine,
		taskMgr:   d.TaskMgr,
		analysis:  d.Analysis,
		socratic:  d.Socratic,
		expert:    d.Expert,
		cognitive: d.Cognitive,
		completer: d.Completer,
		visioner:  d.Vision,
		imageGen:  d.ImageGen,
		recorder:  d.Recorder,
		metrics:   d.Metrics,
		logger:    d.Logger.With("component", "orchestrator"),
	}
}

// HandleUserTurn processes one user message to completion and returns the
// assistant turn view. The pipeline never fails into the caller for external
// reasons; only state preconditions (unknown or terminal session) surface.
func (o *Orchestrator) HandleUserTurn(ctx context.Context, sessionID, text, imagePath string) (*models.AssistantTurnView, error) {
	sess, err := o.store.Get(sessionID)
	if err != nil {
		return nil, err
	}

	sess.Begin()
	defer sess.End()

	if sess.Closed() {
		return nil, session.ErrTerminal
	}

	// A resubmission of the identical last user message replays the
	// memoized view instead of producing a new turn.
	if view := o.replayView(sess, text); view != nil {
		return view, nil
	}

	start := time.Now()
	flags := mode.ForArm(sess.Arm())

	enhanced, imageAnalysis := o.bundleImage(ctx, sess, flags, text, imagePath)

	userIdx, err := sess.AppendUserTurn(text, enhanced, imagePath)
	if err != nil {
		return nil, err
	}

	var view *models.AssistantTurnView
	switch sess.Arm() {
	case models.ArmControl:
		view = o.controlTurn(sess, text)
	case models.ArmGeneric:
		view = o.genericTurn(ctx, sess, text)
	default:
		view = o.mentorTurn(ctx, sess, flags, userIdx, text, imagePath != "", imageAnalysis)
	}

	sess.MemoizeView(userIdx, view)
	o.metrics.RecordTurn(routePathOf(view), string(sess.Arm()), time.Since(start))
	return view, nil
}

// bundleImage analyzes a fresh upload and folds the (possibly earlier)
// analysis into the turn's enhanced text, bounded by the re-bundling cap
func (o *Orchestrator) bundleImage(ctx context.Context, sess *session.Session, flags mode.Flags, text, imagePath string) (string, string) {
	if imagePath != "" && o.visioner != nil && flags.AllowLLM {
		analysis, err := o.visioner.AnalyzeImage(ctx, imagePath, sess.BuildingType())
		if err != nil {
			o.logger.Warn("Image analysis failed, continuing text-only", "error", err)
			o.metrics.RecordFallback("vision")
		} else {
			sess.SetPendingImage(imagePath, analysis.ChatSummary)
		}
	}

	bundled := sess.ConsumeImageBundle(o.cfg.Session.MaxImageBundles)
	if bundled == "" {
		return "", ""
	}
	return text + "\n[ENHANCED IMAGE ANALYSIS: " + bundled + "]", bundled
}

// controlTurn serves the pre-authored prompt bank; no external call is made
func (o *Orchestrator) controlTurn(sess *session.Session, text string) *models.AssistantTurnView {
	decision := models.RoutingDecision{
		Path:   models.RouteDirectAnswer,
		Agents: []string{"control"},
		Reason: "control arm",
	}
	reply := mode.ControlResponse(text)
	idx, err := sess.AppendAssistantTurn(reply, &decision, nil)
	if err != nil {
		idx = sess.NextTurnIndex()
	}
	view := &models.AssistantTurnView{TurnIndex: idx, Text: reply}
	o.logInteraction(sess, idx, decision, "canned_prompt")
	return view
}

// genericTurn collapses the pipeline to one direct answer
func (o *Orchestrator) genericTurn(ctx context.Context, sess *session.Session, text string) *models.AssistantTurnView {
	decision := models.RoutingDecision{
		Path:   models.RouteDirectAnswer,
		Agents: []string{"direct"},
		Reason: "generic arm",
	}

	reply, err := o.directAnswer(ctx, sess, text)
	if err != nil {
		o.logger.Warn("Direct answer failed, using static reply", "error", err)
		o.metrics.RecordFallback("direct_answer")
		reply = "Work with the information you have so far and refine your design; ask again if you want specifics on any part."
	}

	idx, aerr := sess.AppendAssistantTurn(reply, &decision, nil)
	if aerr != nil {
		idx = sess.NextTurnIndex()
	}
	view := &models.AssistantTurnView{TurnIndex: idx, Text: reply}
	o.logInteraction(sess, idx, decision, "direct_answer")
	return view
}

func (o *Orchestrator) directAnswer(ctx context.Context, sess *session.Session, text string) (string, error) {
	var contextText string
	for _, turn := range sess.RecentContext(o.cfg.Session.RecentContextTurns) {
		contextText += fmt.Sprintf("%s: %s\n", turn.Role, util.TruncateString(turn.Text, 200))
	}
	prompt, err := util.RenderTemplate(o.cfg.PromptTemplates.DirectAnswer, map[string]interface{}{
		"Context":     contextText,
		"UserMessage": util.TruncateString(text, 800),
	})
	if err != nil {
		return "", err
	}
	return o.completer.Complete(ctx, o.cfg.Model("chat"), []api.Message{
		{Role: "user", Content: prompt},
	}, false)
}

// mentorTurn runs the full pipeline: route, analyze, grade, trigger, dispatch
func (o *Orchestrator) mentorTurn(ctx context.Context, sess *session.Session, flags mode.Flags, userIdx int, text string, imageUploaded bool, imageAnalysis string) *models.AssistantTurnView {
	decision := o.router.Route(ctx, sess, text)

	analysisResult := o.analysis.Analyze(ctx, text)
	sess.SetBuildingType(analysisResult.BuildingType)

	phaseBefore := sess.CurrentPhase()
	completionBefore := sess.Progress(phaseBefore).CompletionPercent

	engineResult := o.engine.ProcessUserMessage(ctx, sess, userIdx, text, flags.AutoPhaseAdvance)
	o.recordGrade(sess, userIdx, engineResult)

	task, image := o.transitionEffects(ctx, sess, engineResult, tasks.Input{
		Phase: phaseBefore,
		// A fresh session's opening turn enters ideation, so its low-band
		// task is reachable from 0%.
		PhaseEntered:     userIdx == 0,
		CompletionBefore: completionBefore,
		CompletionAfter:  sess.Progress(phaseBefore).CompletionPercent,
		ImageUploaded:    imageUploaded,
		ImageAnalysis:    imageAnalysis,
		Arm:              sess.Arm(),
	}, userIdx)

	ac := &agents.AgentContext{
		Session:        sess,
		UserText:       text,
		LastAssistant:  sess.LastAssistantText(),
		Classification: &decision,
		Analysis:       analysisResult,
		ExpertResponse: o.previousExpertDelivery(sess),
		NextQuestion:   o.engine.ContextualQuestion(sess),
		ImageAnalysis:  imageAnalysis,
	}

	reply, gameView, gameMeta, responseType := o.dispatch(ctx, sess, flags, ac, engineResult)

	// Opportunistic step credit for ground the exchange covered without a
	// direct question; grading still owns scores.
	if marked := o.engine.UpdateChecklistFromInteraction(sess, text, reply); len(marked) > 0 {
		o.logger.Debug("Checklist steps marked from interaction", "session_id", sess.ID(), "steps", marked)
	}

	if engineResult.PhaseTransition != nil {
		reply = transitionAnnouncement(engineResult.PhaseTransition) + "\n\n" + reply
	}

	idx, err := sess.AppendAssistantTurn(reply, &decision, gameMeta)
	if err != nil {
		idx = sess.NextTurnIndex()
	}

	view := &models.AssistantTurnView{
		TurnIndex:       idx,
		Text:            reply,
		Gamification:    gameView,
		GeneratedImage:  image,
		Task:            task,
		PhaseTransition: engineResult.PhaseTransition,
	}
	o.logInteraction(sess, idx, decision, responseType)
	return view
}

// dispatch runs the agent pipeline for the routed path and returns the reply
// text, the gamification view if a game replaced the prose, the meta for the
// transcript, and the response type label.
func (o *Orchestrator) dispatch(ctx context.Context, sess *session.Session, flags mode.Flags, ac *agents.AgentContext, engineResult *phase.Result) (string, *models.GamificationView, *session.GamificationMeta, string) {
	if engineResult.SessionComplete {
		return "You've carried this project through ideation, visualization, and materialization. The session is complete; your full design record is saved.",
			nil, nil, "session_complete"
	}

	switch ac.Classification.Path {
	case models.RouteKnowledgeOnly:
		resp, err := o.expert.GenerateResponse(ctx, ac)
		if err != nil {
			o.logger.Warn("Expert agent failed", "error", err)
			o.metrics.RecordFallback("expert")
			return "Let's keep working with the precedents you already have; which one feels closest to your design?", nil, nil, "expert_error"
		}
		return resp.Text, nil, nil, resp.ResponseType

	default:
		// Gamification gets first claim on the turn; a generated challenge
		// replaces the Socratic prose entirely.
		if flags.AllowGamification {
			resp, err := o.cognitive.GenerateResponse(ctx, ac)
			if err == nil && resp.Gamification != nil {
				meta := &session.GamificationMeta{
					Applied:       true,
					ChallengeType: resp.Gamification.ChallengeType,
					Payload:       resp.Gamification.Payload,
				}
				o.metrics.RecordGame(string(resp.Gamification.ChallengeType), false)
				return resp.Text, resp.Gamification, meta, agents.ResponseGamified
			}
		}

		return o.socraticReply(ctx, sess, ac, engineResult)
	}
}

// socraticReply composes the tutoring text: grade feedback plus the next
// question, with curriculum bookkeeping applied afterward
func (o *Orchestrator) socraticReply(ctx context.Context, sess *session.Session, ac *agents.AgentContext, engineResult *phase.Result) (string, *models.GamificationView, *session.GamificationMeta, string) {
	// A failed answer re-opens the same question; the nudge carries the turn.
	if engineResult.Nudge != "" && engineResult.Grade != nil {
		o.engine.MarkOutstanding(sess, engineResult.Grade.QuestionID)
		return engineResult.Nudge, nil, nil, "nudge"
	}

	resp, err := o.socratic.GenerateResponse(ctx, ac)
	if err != nil {
		o.logger.Warn("Socratic agent failed", "error", err)
		o.metrics.RecordFallback("socratic")
		resp = &agents.Response{
			Text:         "What feels like the least resolved part of your design right now?",
			ResponseType: agents.ResponseSocraticQuestion,
		}
	}

	text := resp.Text
	if engineResult.Grade != nil && engineResult.Grade.Passed && text != "" {
		text = "Good; that covers " + engineResult.Grade.Step + " well. " + text
	}

	// Asking a question binds it to the curriculum step it targets.
	if resp.ResponseType == agents.ResponseSocraticQuestion && text != "" {
		sess.MarkQuestionAsked(resp.Text)
		if ac.NextQuestion != nil {
			o.engine.MarkOutstanding(sess, ac.NextQuestion.ID)
		}
	}
	if text == "" {
		text = "Carry on; I'm following your reasoning."
	}
	return text, nil, nil, resp.ResponseType
}

// transitionEffects runs the exactly-once side effects of a phase transition
// and the per-turn task triggers
func (o *Orchestrator) transitionEffects(ctx context.Context, sess *session.Session, engineResult *phase.Result, in tasks.Input, userIdx int) (*models.Task, *models.GeneratedImage) {
	if tr := engineResult.PhaseTransition; tr != nil {
		if !sess.MarkTransition(tr.Previous, tr.New, userIdx) {
			return nil, nil
		}
		o.metrics.RecordPhaseTransition(string(tr.New), false)

		entry := tasks.Input{
			Phase:        tr.New,
			PhaseEntered: true,
			Arm:          in.Arm,
		}
		task := o.taskMgr.CheckTriggers(sess, entry)
		if task != nil {
			o.metrics.RecordTask(string(task.Type))
		}
		return task, o.generateTransitionImage(ctx, sess, tr.New)
	}

	task := o.taskMgr.CheckTriggers(sess, in)
	if task != nil {
		o.metrics.RecordTask(string(task.Type))
	}
	return task, nil
}

func (o *Orchestrator) generateTransitionImage(ctx context.Context, sess *session.Session, newPhase models.Phase) *models.GeneratedImage {
	if o.imageGen == nil {
		return nil
	}
	prompt := imagegen.TransitionPrompt(newPhase, sess.BuildingType())
	img, err := o.imageGen.Generate(ctx, newPhase, prompt)
	if err != nil {
		o.logger.Warn("Transition image generation failed", "phase", newPhase, "error", err)
		o.metrics.RecordFallback("imagegen")
		return nil
	}
	if err := o.imageGen.Download(ctx, img, o.recorder.SessionDir(sess.ID())); err != nil {
		o.logger.Warn("Image download failed, serving remote URL only", "error", err)
	}
	return img
}

func (o *Orchestrator) recordGrade(sess *session.Session, userIdx int, result *phase.Result) {
	if result.Grade == nil {
		return
	}
	o.metrics.RecordGrade(string(result.CurrentPhase), result.Grade.Overall, result.Grade.Heuristic)
	o.recorder.LogDesignMove(telemetry.DesignMove{
		Timestamp: time.Now(),
		SessionID: sess.ID(),
		TurnIndex: userIdx,
		Phase:     result.CurrentPhase,
		Step:      result.Grade.Step,
		Score:     result.Grade.Overall,
		Passed:    result.Grade.Passed,
		Heuristic: result.Grade.Heuristic,
	})
}

// previousExpertDelivery reconstructs the expert's example delivery when it
// carried the last assistant turn. Agents key follow-up behavior on it: the
// decider suppresses games and the Socratic agent asks about the precedents
// instead of opening a new thread.
func (o *Orchestrator) previousExpertDelivery(sess *session.Session) *agents.Response {
	turns := sess.Turns()
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role != session.RoleAssistant {
			continue
		}
		if turns[i].RoutingMeta != nil && turns[i].RoutingMeta.ThreadType == models.ThreadExampleRequest {
			return &agents.Response{Text: turns[i].Text, ResponseType: agents.ResponseExamples}
		}
		return nil
	}
	return nil
}

// replayView returns the memoized view when the incoming message duplicates
// the most recent user turn
func (o *Orchestrator) replayView(sess *session.Session, text string) *models.AssistantTurnView {
	turns := sess.Turns()
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role != session.RoleUser {
			continue
		}
		if turns[i].Text == text {
			if view, ok := sess.MemoizedView(turns[i].Index); ok {
				return view
			}
		}
		break
	}
	return nil
}

func (o *Orchestrator) logInteraction(sess *session.Session, turnIdx int, decision models.RoutingDecision, responseType string) {
	o.recorder.LogInteraction(telemetry.InteractionRecord{
		Timestamp:    time.Now(),
		SessionID:    sess.ID(),
		TurnIndex:    turnIdx,
		Arm:          sess.Arm(),
		Path:         decision.Path,
		ThreadType:   decision.ThreadType,
		AgentsUsed:   decision.Agents,
		ResponseType: responseType,
	})
}

// Reset flushes and destroys the session, replacing it with a fresh one
func (o *Orchestrator) Reset(sessionID string) (*session.Session, error) {
	old, err := o.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	o.recorder.FlushSession(old)
	return o.store.Reset(sessionID)
}

// PhaseStatus returns curriculum progress for the UI
func (o *Orchestrator) PhaseStatus(sessionID string) (models.PhaseStatus, error) {
	sess, err := o.store.Get(sessionID)
	if err != nil {
		return models.PhaseStatus{}, err
	}
	sess.Begin()
	defer sess.End()
	return o.engine.Status(sess), nil
}

// Transcript returns the full ordered turn record
func (o *Orchestrator) Transcript(sessionID string) ([]session.Turn, error) {
	sess, err := o.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	sess.Begin()
	defer sess.End()
	return sess.Turns(), nil
}

// AdvancePhase performs manual phase advancement for the non-mentor arms
func (o *Orchestrator) AdvancePhase(sessionID, reason string) (*models.PhaseTransition, error) {
	sess, err := o.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	sess.Begin()
	defer sess.End()

	tr, err := o.engine.AdvancePhaseManually(sess, reason)
	if err != nil {
		return nil, err
	}
	o.metrics.RecordPhaseTransition(string(tr.New), true)

	if sess.MarkTransition(tr.Previous, tr.New, sess.NextTurnIndex()) {
		task := o.taskMgr.CheckTriggers(sess, tasks.Input{
			Phase:        tr.New,
			PhaseEntered: true,
			Arm:          sess.Arm(),
		})
		if task != nil {
			o.metrics.RecordTask(string(task.Type))
		}
	}
	return tr, nil
}

func transitionAnnouncement(tr *models.PhaseTransition) string {
	switch tr.New {
	case models.PhaseVisualization:
		return "You've worked through the ideation phase; your concept, site, program, and users all have substance now. Time to make the design visible: massing, drawings, environment, and materials."
	case models.PhaseMaterialization:
		return "Visualization is complete; the design reads clearly. Now let's make it buildable: 3D resolution, structure, and the realities of construction."
	case models.PhaseComplete:
		return "Materialization is done, and with it the full design journey."
	default:
		return fmt.Sprintf("Moving into the %s phase.", tr.New)
	}
}

func routePathOf(view *models.AssistantTurnView) string {
	if view == nil {
		return "unknown"
	}
	if view.Gamification != nil {
		return "gamified"
	}
	return "standard"
}
