package chat

// decision is the outcome of the translation-decision cascade for one message.
type decision struct {
	// translate: call the translator with source/target below.
	translate bool
	// snapshot: store the original text as the translated rendering without
	// calling the translator (languages already agree).
	snapshot bool

	// source is the language to translate from; empty means backend
	// auto-detection.
	source string
	target string
}

// decideTranslation applies the delivery cascade. All languages are
// normalized primary subtags; empty means "no preference" / unknown.
//
// The cascade, in order:
//  1. Receiver has no preference: deliver as-is, no translated rendering.
//  2. Detected language already matches the receiver's preference:
//     a. but the sender declared a different language than was detected,
//        trust the sender and attempt a translation from their language;
//     b. otherwise snapshot the original as the translated rendering.
//  3. Detected English going to a non-English receiver: translate with
//     backend auto-detection as the source. Detection reads transliterated
//     text (e.g. romanized Persian) as English; auto lets the backend
//     re-classify it.
//  4. Detected non-English going to an English receiver: translate from the
//     detected language.
//  5. Any other language mismatch: translate, preferring the sender's
//     declared language over detection as the source. A hint equal to the
//     target would make the request a no-op, so it falls back to detection.
func decideTranslation(detected, senderPref, receiverPref string) decision {
	if receiverPref == "" {
		return decision{}
	}

	if detected == receiverPref {
		if senderPref != "" && senderPref != detected {
			return decision{translate: true, source: senderPref, target: receiverPref}
		}
		return decision{snapshot: true, target: receiverPref}
	}

	if detected == "en" && receiverPref != "en" {
		return decision{translate: true, source: "", target: receiverPref}
	}

	if detected != "en" && receiverPref == "en" {
		return decision{translate: true, source: detected, target: "en"}
	}

	source := detected
	if senderPref != "" && senderPref != receiverPref {
		source = senderPref
	}
	return decision{translate: true, source: source, target: receiverPref}
}
