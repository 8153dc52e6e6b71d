package world

import (
	"strings"

	"github.com/sirupsen/logrus"

	"driftmoor.ai/internal/protocol"
	"driftmoor.ai/internal/sim/simerr"
	"driftmoor.ai/internal/sim/world/logic/rates"
)

const maxSayLen = 280

// applyIntent maps one player intent onto exactly one system operation. A rejected intent leaves
// the world untouched and produces an intent_rejected event for the sender only.
func (w *World) applyIntent(env IntentEnvelope, nowTick uint64) bool {
	e, _ := w.store.Get(env.EntityID)
	in := env.Intent
	err := w.dispatchIntent(e, in, nowTick)
	if err != nil {
		w.reject(e, in, err, nowTick)
		return false
	}
	if in.Intent != protocol.IntentSay {
		w.store.edit(e.ID).Generation++
	}
	return true
}

func (w *World) dispatchIntent(e *Entity, in protocol.IntentMsg, nowTick uint64) error {
	if e.Dead && in.Intent != protocol.IntentSay {
		return simerr.New(simerr.InvalidTarget, "%s is dead", e.ID)
	}
	switch in.Intent {
	case protocol.IntentMoveTo:
		if in.Dest == nil {
			return simerr.New(simerr.InvalidTarget, "move_to without dest")
		}
		return w.startMove(e, fromPosition(*in.Dest), nowTick)
	case protocol.IntentGatherResource:
		return w.startGathering(e, in.NodeID, nowTick)
	case protocol.IntentAttack:
		if err := w.startCombat(e, in.TargetID, nowTick); err != nil {
			return err
		}
		if e.Kind == KindPlayer {
			w.store.edit(in.TargetID).Generation++
		}
		return nil
	case protocol.IntentCraft:
		return w.craft(e, in.RecipeID, nowTick)
	case protocol.IntentQuestAction:
		return w.questAction(e, in.QuestID, in.Stage, nowTick)
	case protocol.IntentShopBuy:
		return w.shopBuy(e, in.ShopID, in.Item, in.Count)
	case protocol.IntentShopSell:
		return w.shopSell(e, in.ShopID, in.Item, in.Count)
	case protocol.IntentBankDeposit:
		return w.bankDeposit(e, in.Item, in.Count)
	case protocol.IntentBankWithdraw:
		return w.bankWithdraw(e, in.Item, in.Count)
	case protocol.IntentSay:
		return w.say(e, in.Text, nowTick)
	case protocol.IntentStop:
		return w.startAction(e, Action{Kind: ActionIdle}, nowTick)
	default:
		return errBadIntent(in.Intent)
	}
}

type badIntentError string

func (e badIntentError) Error() string { return "unknown intent " + string(e) }

func errBadIntent(name string) error { return badIntentError(name) }

func (w *World) reject(e *Entity, in protocol.IntentMsg, err error, nowTick uint64) {
	code := string(simerr.KindOf(err))
	switch {
	case code != "":
		if !simerr.PlayerFacing(simerr.Kind(code)) {
			return
		}
	case isBadIntent(err):
		code = protocol.ErrProtoBadRequest
	default:
		code = protocol.ErrInternal
		w.log.WithError(err).WithFields(logrus.Fields{"entity": e.ID, "intent": in.Intent}).Error("intent failed")
	}
	w.emit(protocol.Event{
		Tick:     nowTick,
		Type:     protocol.EventIntentRejected,
		To:       e.ID,
		EntityID: e.ID,
		Ref:      in.Ref,
		Code:     code,
		Message:  err.Error(),
	})
}

func isBadIntent(err error) bool {
	_, ok := err.(badIntentError)
	return ok
}

func (w *World) say(e *Entity, text string, nowTick uint64) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return simerr.New(simerr.InvalidTarget, "empty message")
	}
	lim := w.sayLimits[e.ID]
	if lim == nil {
		lim = &rates.Window{}
		w.sayLimits[e.ID] = lim
	}
	if ok, wait := lim.Allow(nowTick, uint64(w.cfg.SayWindowTicks), w.cfg.SayMax); !ok {
		return simerr.New(simerr.Busy, "speaking too fast, wait %d ticks", wait)
	}
	if len(text) > maxSayLen {
		text = text[:maxSayLen]
	}
	w.speak(e, text, nowTick)
	return nil
}
