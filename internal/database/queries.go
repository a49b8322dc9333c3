package database

// Account and template queries
const (
	insertAccountQuery = `
		INSERT INTO accounts (name, base_url, access_token, active)
		VALUES (?, ?, ?, ?)
	`

	selectActiveAccountQuery = `
		SELECT id, name, base_url, access_token, active, created_at
		FROM accounts
		WHERE active = 1
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`

	insertTemplateQuery = `
		INSERT INTO templates (account_id, name, category, status, lang_code)
		VALUES (?, ?, ?, ?, ?)
	`

	selectApprovedTemplateByNameQuery = `
		SELECT id, account_id, name, category, status, lang_code, created_at
		FROM templates
		WHERE account_id = ? AND name = ? AND status = 'approved'
		ORDER BY id ASC
		LIMIT 1
	`

	selectApprovedTemplateByCategoryQuery = `
		SELECT id, account_id, name, category, status, lang_code, created_at
		FROM templates
		WHERE account_id = ? AND category = ? AND status = 'approved'
		ORDER BY id ASC
		LIMIT 1
	`
)

// Conversation queries
const (
	insertConversationQuery = `
		INSERT INTO conversations (name, counterparty_name, counterparty_phone, counterparty_phone_hash, created_by)
		VALUES (?, ?, ?, ?, ?)
	`

	selectConversationByIDQuery = `
		SELECT id, name, counterparty_name, counterparty_phone, created_by, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`

	selectConversationByPhoneHashQuery = `
		SELECT id, name, counterparty_name, counterparty_phone, created_by, created_at, updated_at
		FROM conversations
		WHERE counterparty_phone_hash = ?
		LIMIT 1
	`

	touchConversationQuery = `
		UPDATE conversations
		SET updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	upsertMembershipQuery = `
		INSERT INTO conversation_members (conversation_id, user_id)
		VALUES (?, ?)
		ON CONFLICT (conversation_id, user_id) DO NOTHING
	`

	incrementUnreadQuery = `
		UPDATE conversation_members
		SET unread_count = unread_count + 1
		WHERE conversation_id = ? AND user_id != ?
	`

	advanceReadCursorQuery = `
		UPDATE conversation_members
		SET last_read_message_id = ?, unread_count = 0
		WHERE conversation_id = ? AND user_id = ?
	`
)

// Thread message queries
const (
	insertThreadMessageQuery = `
		INSERT INTO thread_messages (
			conversation_id, author_id, author_name, body, direction,
			external_channel, delivery_status, external_message_id,
			counterparty_phone, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectThreadMessageQuery = `
		SELECT id, conversation_id, author_id, author_name, body, direction,
		       external_channel, delivery_status, external_message_id,
		       counterparty_phone, error_message, delivery_record_id, created_at
		FROM thread_messages
		WHERE id = ?
	`

	updateThreadDeliveryStatusQuery = `
		UPDATE thread_messages
		SET delivery_status = ?, error_message = ?
		WHERE id = ?
	`

	linkDeliveryRecordQuery = `
		UPDATE thread_messages
		SET delivery_record_id = ?
		WHERE id = ?
	`

	setExternalMessageIDQuery = `
		UPDATE thread_messages
		SET external_message_id = ?
		WHERE id = ?
	`

	selectLatestInboundQuery = `
		SELECT id, conversation_id, author_id, author_name, body, direction,
		       external_channel, delivery_status, external_message_id,
		       counterparty_phone, error_message, delivery_record_id, created_at
		FROM thread_messages
		WHERE conversation_id = ? AND direction = 'inbound'
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	countMessagesQuery = `
		SELECT COUNT(*) FROM thread_messages WHERE conversation_id = ?
	`

	selectMessagesPageQuery = `
		SELECT id, conversation_id, author_id, author_name, body, direction,
		       external_channel, delivery_status, external_message_id,
		       counterparty_phone, error_message, delivery_record_id, created_at
		FROM thread_messages
		WHERE conversation_id = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`

	linkMessageAttachmentQuery = `
		INSERT INTO message_attachments (message_id, attachment_id)
		VALUES (?, ?)
		ON CONFLICT (message_id, attachment_id) DO NOTHING
	`

	selectMessageAttachmentsQuery = `
		SELECT a.id, a.file_name, a.mime_type
		FROM attachments a
		JOIN message_attachments ma ON ma.attachment_id = a.id
		WHERE ma.message_id = ?
		ORDER BY a.id ASC
	`
)

// Attachment queries
const (
	insertAttachmentQuery = `
		INSERT INTO attachments (conversation_id, file_name, mime_type, data)
		VALUES (?, ?, ?, ?)
	`

	selectAttachmentQuery = `
		SELECT id, file_name, mime_type
		FROM attachments
		WHERE id = ?
	`

	selectAttachmentDataQuery = `
		SELECT file_name, mime_type, data
		FROM attachments
		WHERE id = ?
	`

	clearOldAttachmentDataQuery = `
		UPDATE attachments
		SET data = NULL
		WHERE data IS NOT NULL
		  AND created_at < datetime('now', '-' || ? || ' days')
	`
)

// Delivery record queries
const (
	insertDeliveryRecordQuery = `
		INSERT INTO delivery_records (
			phone_raw, phone_normalized, phone_hash, direction, state,
			account_id, thread_message_id, template_id, template_lang_code,
			body_text, provider_message_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectDeliveryRecordQuery = `
		SELECT id, phone_raw, phone_normalized, direction, state, account_id,
		       thread_message_id, template_id, template_lang_code, body_text,
		       provider_message_id, failure_type, error_message, retry_count,
		       last_retry_at, created_at, updated_at
		FROM delivery_records
		WHERE id = ?
	`

	selectDeliveryRecordByProviderIDQuery = `
		SELECT id, phone_raw, phone_normalized, direction, state, account_id,
		       thread_message_id, template_id, template_lang_code, body_text,
		       provider_message_id, failure_type, error_message, retry_count,
		       last_retry_at, created_at, updated_at
		FROM delivery_records
		WHERE provider_message_id = ?
		LIMIT 1
	`

	updateDeliveryStateQuery = `
		UPDATE delivery_records
		SET state = ?, error_message = ?, failure_type = NULL
		WHERE id = ?
	`

	setDeliveryFailureQuery = `
		UPDATE delivery_records
		SET state = 'error', failure_type = ?, error_message = ?
		WHERE id = ?
	`

	setProviderMessageIDQuery = `
		UPDATE delivery_records
		SET provider_message_id = ?
		WHERE id = ?
	`

	incrementDeliveryRetryQuery = `
		UPDATE delivery_records
		SET retry_count = retry_count + 1, last_retry_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	selectRetryableDeliveriesQuery = `
		SELECT id, phone_raw, phone_normalized, direction, state, account_id,
		       thread_message_id, template_id, template_lang_code, body_text,
		       provider_message_id, failure_type, error_message, retry_count,
		       last_retry_at, created_at, updated_at
		FROM delivery_records
		WHERE direction = 'outbound'
		  AND state IN ('outgoing', 'error')
		  AND retry_count < ?
		ORDER BY updated_at ASC
		LIMIT ?
	`

	insertDeliveryComponentQuery = `
		INSERT INTO delivery_components (delivery_record_id, component_type, variables)
		VALUES (?, ?, ?)
	`

	selectDeliveryComponentsQuery = `
		SELECT id, delivery_record_id, component_type, variables
		FROM delivery_components
		WHERE delivery_record_id = ?
		ORDER BY id ASC
	`

	linkDeliveryAttachmentQuery = `
		INSERT INTO delivery_attachments (delivery_record_id, attachment_id)
		VALUES (?, ?)
		ON CONFLICT (delivery_record_id, attachment_id) DO NOTHING
	`

	selectDeliveryAttachmentsQuery = `
		SELECT a.id, a.file_name, a.mime_type
		FROM attachments a
		JOIN delivery_attachments da ON da.attachment_id = a.id
		WHERE da.delivery_record_id = ?
		ORDER BY a.id ASC
	`
)
