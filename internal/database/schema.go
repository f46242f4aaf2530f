package database

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    user_id VARCHAR(191) PRIMARY KEY,
    balance INT UNSIGNED NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS point_transactions (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    user_id VARCHAR(191) NOT NULL,
    amount INT NOT NULL,
    type VARCHAR(8) NOT NULL,
    reason VARCHAR(255) NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    KEY idx_point_transactions_user (user_id, created_at),
    FOREIGN KEY (user_id) REFERENCES accounts(user_id)
);

CREATE TABLE IF NOT EXISTS payment_transactions (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    user_id VARCHAR(191) NOT NULL,
    plan_id VARCHAR(32) NOT NULL,
    provider VARCHAR(32) NOT NULL,
    checkout_id VARCHAR(128) NOT NULL UNIQUE,
    request_id VARCHAR(64) NOT NULL,
    amount_minor INT NOT NULL DEFAULT 0,
    currency VARCHAR(8) NOT NULL DEFAULT '',
    points INT NOT NULL,
    status VARCHAR(16) NOT NULL,
    raw_payload TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    completed_at TIMESTAMP NULL,
    KEY idx_payment_transactions_user_status (user_id, status, completed_at)
);

CREATE TABLE IF NOT EXISTS images (
    id CHAR(36) PRIMARY KEY,
    user_id VARCHAR(191) NOT NULL,
    image_url TEXT NOT NULL,
    storage_key VARCHAR(512) NOT NULL DEFAULT '',
    prompt TEXT NOT NULL,
    api_used VARCHAR(64) NOT NULL DEFAULT '',
    is_public TINYINT(1) NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    KEY idx_images_public (is_public, created_at),
    KEY idx_images_user (user_id, created_at)
);

CREATE TABLE IF NOT EXISTS image_events (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    image_id CHAR(36) NOT NULL,
    user_id VARCHAR(191) NULL,
    action VARCHAR(16) NOT NULL,
    value INT NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    KEY idx_image_events_image (image_id, action),
    FOREIGN KEY (image_id) REFERENCES images(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS guest_usage (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    guest_key CHAR(64) NOT NULL,
    api_used VARCHAR(64) NOT NULL,
    prompt TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    KEY idx_guest_usage_key (guest_key, created_at)
);
`
